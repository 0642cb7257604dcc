package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"fundimart.org/internal/config"
)

func main() {
	v := config.New()
	var baseURL, email, password string
	root := &cobra.Command{
		Use:          "smoke",
		Short:        "Probe a running fundimart API over gRPC health and HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			addr := v.GetString("grpc_addr")
			if err := checkHealth(ctx, addr); err != nil {
				return fmt.Errorf("grpc health at %s: %w", addr, err)
			}
			fmt.Printf("grpc health at %s: SERVING\n", addr)

			if email == "" {
				return nil
			}
			role, err := checkLogin(ctx, baseURL, email, password)
			if err != nil {
				return fmt.Errorf("login as %s: %w", email, err)
			}
			fmt.Printf("login as %s: role=%s\n", email, role)
			return nil
		},
	}
	if err := config.BindFlags(root, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fs := root.Flags()
	fs.StringVar(&baseURL, "base-url", "http://localhost:8080", "HTTP base URL of the API")
	fs.StringVar(&email, "email", "", "account to log in with; empty skips the HTTP check")
	fs.StringVar(&password, "password", "", "password of --email")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func checkHealth(ctx context.Context, addr string) error {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}

func checkLogin(ctx context.Context, baseURL, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Token    string `json:"token"`
		Identity struct {
			Role string `json:"role"`
		} `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("empty token")
	}
	return out.Identity.Role, nil
}
