package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/ids"
	"fundimart.org/internal/obs"
)

// ReceiptStatus is the verification state of a material receipt.
type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptVerified ReceiptStatus = "verified"
	ReceiptRejected ReceiptStatus = "rejected"
)

// Terminal reports whether no further transition is defined.
func (s ReceiptStatus) Terminal() bool {
	return s == ReceiptVerified || s == ReceiptRejected
}

// ParseReceiptStatus validates a status filter value.
func ParseReceiptStatus(raw string) (ReceiptStatus, error) {
	switch st := ReceiptStatus(strings.ToLower(strings.TrimSpace(raw))); st {
	case ReceiptPending, ReceiptVerified, ReceiptRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown receipt status %q", auth.ErrInvalidInput, raw)
}

// Receipt is an uploaded proof of material purchase awaiting sign-off.
type Receipt struct {
	ID         string        `json:"id"`
	UploaderID string        `json:"uploader_id"`
	ParentKind string        `json:"parent_kind,omitempty"`
	ParentID   string        `json:"parent_id,omitempty"`
	FileRef    string        `json:"file_ref"`
	SizeBytes  int64         `json:"size_bytes"`
	Status     ReceiptStatus `json:"status"`
	Notes      string        `json:"notes,omitempty"`
	VerifiedBy string        `json:"verified_by,omitempty"`
	VerifiedAt *time.Time    `json:"verified_at,omitempty"`
	RejectedBy string        `json:"rejected_by,omitempty"`
	RejectedAt *time.Time    `json:"rejected_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// UploadInput is the caller-supplied part of a new receipt.
type UploadInput struct {
	ParentKind string `json:"parent_kind"`
	ParentID   string `json:"parent_id"`
	FileRef    string `json:"file_ref"`
	SizeBytes  int64  `json:"size_bytes"`
	Notes      string `json:"notes"`
}

// ReceiptTransition is applied by the store only while the receipt is pending.
type ReceiptTransition struct {
	To    ReceiptStatus
	Actor string
	At    time.Time
	// Notes replaces the stored notes when non-nil.
	Notes *string
}

// Apply returns r after the transition; the caller has checked r is pending.
func (t ReceiptTransition) Apply(r Receipt) Receipt {
	at := t.At
	r.Status = t.To
	r.UpdatedAt = at
	switch t.To {
	case ReceiptVerified:
		r.VerifiedBy = t.Actor
		r.VerifiedAt = &at
	case ReceiptRejected:
		r.RejectedBy = t.Actor
		r.RejectedAt = &at
	}
	if t.Notes != nil {
		r.Notes = *t.Notes
	}
	return r
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	Status     ReceiptStatus
	UploaderID string
	Limit      int
}

// ReceiptStore persists receipts.
type ReceiptStore interface {
	CreateReceipt(ctx context.Context, r Receipt) error
	Receipt(ctx context.Context, id string) (Receipt, error)
	ListReceipts(ctx context.Context, f ReceiptFilter) ([]Receipt, error)
	// TransitionReceipt applies t as one conditional write. A receipt that is no
	// longer pending yields ErrInvalidTransition; a missing one auth.ErrNotFound.
	TransitionReceipt(ctx context.Context, id string, t ReceiptTransition) (Receipt, error)
}

// TransitionAction names a receipt workflow action.
type TransitionAction string

const (
	ActVerify TransitionAction = "verify"
	ActReject TransitionAction = "reject"
)

// TransitionPayload carries optional action input.
type TransitionPayload struct {
	Reason string `json:"reason"`
}

var parentKinds = map[string]bool{"booking": true, "shop": true}

// Upload stores a new pending receipt owned by actor.
func (s *Service) Upload(ctx context.Context, actor *auth.Identity, in UploadInput) (Receipt, error) {
	if err := s.gate.Require(ctx, actor, ActionReceiptUpload, nil); err != nil {
		return Receipt{}, err
	}
	in.FileRef = strings.TrimSpace(in.FileRef)
	if in.FileRef == "" {
		return Receipt{}, fmt.Errorf("%w: file_ref is required", auth.ErrInvalidInput)
	}
	if in.SizeBytes < 0 {
		return Receipt{}, fmt.Errorf("%w: size_bytes must not be negative", auth.ErrInvalidInput)
	}
	if in.ParentKind != "" {
		if !parentKinds[in.ParentKind] {
			return Receipt{}, fmt.Errorf("%w: unknown parent kind %q", auth.ErrInvalidInput, in.ParentKind)
		}
		if strings.TrimSpace(in.ParentID) == "" {
			return Receipt{}, fmt.Errorf("%w: parent_id is required with parent_kind", auth.ErrInvalidInput)
		}
	}
	if s.uploadLimit != nil {
		limit, err := s.uploadLimit(ctx)
		if err != nil {
			return Receipt{}, err
		}
		if limit > 0 && in.SizeBytes > limit {
			return Receipt{}, fmt.Errorf("%w: receipt exceeds %d bytes", auth.ErrInvalidInput, limit)
		}
	}
	now := s.now().UTC()
	r := Receipt{
		ID:         ids.WithPrefix("rcp"),
		UploaderID: actor.UserID,
		ParentKind: in.ParentKind,
		ParentID:   in.ParentID,
		FileRef:    in.FileRef,
		SizeBytes:  in.SizeBytes,
		Status:     ReceiptPending,
		Notes:      strings.TrimSpace(in.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.receipts.CreateReceipt(ctx, r); err != nil {
		return Receipt{}, err
	}
	obs.ObserveTransition("receipt", string(ReceiptPending))
	return r, nil
}

// Verify moves a pending receipt to verified.
func (s *Service) Verify(ctx context.Context, actor *auth.Identity, id string) (Receipt, error) {
	return s.Transition(ctx, actor, id, ActVerify, TransitionPayload{})
}

// Reject moves a pending receipt to rejected. An empty reason keeps existing notes.
func (s *Service) Reject(ctx context.Context, actor *auth.Identity, id, reason string) (Receipt, error) {
	return s.Transition(ctx, actor, id, ActReject, TransitionPayload{Reason: reason})
}

// Transition authorizes and applies a receipt workflow action.
func (s *Service) Transition(ctx context.Context, actor *auth.Identity, id string, action TransitionAction, payload TransitionPayload) (Receipt, error) {
	var (
		gateAction auth.Action
		to         ReceiptStatus
	)
	switch action {
	case ActVerify:
		gateAction, to = ActionReceiptVerify, ReceiptVerified
	case ActReject:
		gateAction, to = ActionReceiptReject, ReceiptRejected
	default:
		return Receipt{}, fmt.Errorf("%w: unknown receipt action %q", auth.ErrInvalidInput, action)
	}
	if err := s.gate.Require(ctx, actor, gateAction, nil); err != nil {
		return Receipt{}, err
	}

	t := ReceiptTransition{To: to, Actor: actor.UserID, At: s.now().UTC()}
	if reason := strings.TrimSpace(payload.Reason); to == ReceiptRejected && reason != "" {
		t.Notes = &reason
	}
	r, err := s.receipts.TransitionReceipt(ctx, id, t)
	if err != nil {
		return Receipt{}, err
	}
	obs.ObserveTransition("receipt", string(to))
	if to == ReceiptVerified {
		s.bump(ctx, actor.UserID, admin.StatVerifiedCount)
	}
	return r, nil
}

func (s *Service) GetReceipt(ctx context.Context, actor *auth.Identity, id string) (Receipt, error) {
	if err := s.gate.Require(ctx, actor, ActionReceiptRead, nil); err != nil {
		return Receipt{}, err
	}
	return s.receipts.Receipt(ctx, id)
}

func (s *Service) ListReceipts(ctx context.Context, actor *auth.Identity, f ReceiptFilter) ([]Receipt, error) {
	if err := s.gate.Require(ctx, actor, ActionReceiptRead, nil); err != nil {
		return nil, err
	}
	f.Limit = clampLimit(f.Limit)
	return s.receipts.ListReceipts(ctx, f)
}

// InvalidReceiptTransition builds the error stores return for non-pending receipts.
func InvalidReceiptTransition(id string, current ReceiptStatus) error {
	return fmt.Errorf("%w: receipt %s is %s", ErrInvalidTransition, id, current)
}
