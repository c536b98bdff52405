package fetchers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"marketplace-listing-api/internal/models"
	"marketplace-listing-api/pkg/credentials"
)

type Action string

const (
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionDelete       Action = "delete"
	ActionUpdateStatus Action = "updateStatus"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionDelete, ActionUpdateStatus:
		return true
	default:
		return false
	}
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Mutation is a row-level action on one item.
type Mutation struct {
	ID      string         `validate:"required"`
	Action  Action         `validate:"required"`
	Payload map[string]any // action-specific fields, e.g. "status" for updateStatus
}

// BulkMutation applies one action to several items through {endpoint}/manage.
type BulkMutation struct {
	Action Action   `json:"action" validate:"required"`
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
}

// MutationDispatcher sends item-level mutations to the backend. It never
// changes local state: the caller's onSuccess decides what to reload.
// Failed calls are not retried.
type MutationDispatcher struct {
	name      string
	endpoint  string
	creds     credentials.Store
	transport *transport

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewMutationDispatcher(cfg FetcherConfig, creds credentials.Store) *MutationDispatcher {
	name := cfg.Name
	if name == "" {
		name = cfg.Endpoint
	}
	return &MutationDispatcher{
		name:      name,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		creds:     creds,
		transport: newTransport(name+" mutation", cfg.Timeout),
		inFlight:  make(map[string]struct{}),
	}
}

// Dispatch sends m and calls onSuccess once the backend confirms it.
// An identical mutation already in flight makes this call fail with
// ErrMutationInFlight.
func (d *MutationDispatcher) Dispatch(ctx context.Context, m Mutation, onSuccess func()) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMutation, err)
	}
	if !m.Action.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, m.Action)
	}

	method, target, payload, err := d.route(m)
	if err != nil {
		return err
	}

	op := fmt.Sprintf("%s %s %s", m.Action, d.name, m.ID)
	return d.send(ctx, op, flightKey(m.Action, []string{m.ID}), method, target, payload, onSuccess)
}

// DispatchBulk sends b to {endpoint}/manage. updateStatus is not a bulk action.
func (d *MutationDispatcher) DispatchBulk(ctx context.Context, b BulkMutation, onSuccess func()) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMutation, err)
	}
	if !b.Action.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, b.Action)
	}
	if b.Action == ActionUpdateStatus {
		return fmt.Errorf("%w: %s needs a status per item", ErrInvalidMutation, b.Action)
	}

	op := fmt.Sprintf("bulk %s %s (%d items)", b.Action, d.name, len(b.IDs))
	return d.send(ctx, op, flightKey(b.Action, b.IDs), http.MethodPost, d.endpoint+"/manage", b, onSuccess)
}

// InFlight reports whether a mutation with this action and id set is running.
func (d *MutationDispatcher) InFlight(action Action, ids ...string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[flightKey(action, ids)]
	return ok
}

func (d *MutationDispatcher) route(m Mutation) (string, string, any, error) {
	target := d.endpoint + "/" + url.PathEscape(m.ID)

	switch m.Action {
	case ActionDelete:
		return http.MethodDelete, target, nil, nil
	case ActionUpdateStatus:
		status, _ := m.Payload["status"].(string)
		if strings.TrimSpace(status) == "" {
			return "", "", nil, fmt.Errorf("%w: updateStatus requires a status", ErrInvalidMutation)
		}
		body := make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			body[k] = v
		}
		return http.MethodPut, target, body, nil
	default:
		body := make(map[string]any, len(m.Payload)+1)
		for k, v := range m.Payload {
			body[k] = v
		}
		body["action"] = string(m.Action)
		return http.MethodPost, target, body, nil
	}
}

func (d *MutationDispatcher) send(ctx context.Context, op, key, method, target string, payload any, onSuccess func()) error {
	token, err := d.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	d.mu.Lock()
	if _, busy := d.inFlight[key]; busy {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrMutationInFlight)
	}
	d.inFlight[key] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}()

	status, body, err := d.transport.do(ctx, method, target, token, payload)
	if err != nil {
		actionErr := &ActionError{Op: op, Kind: KindTransport, Err: err}
		log.Printf("Mutation failed: %v", actionErr)
		return actionErr
	}

	if err := parseMutationResponse(op, status, body); err != nil {
		log.Printf("Mutation failed: %v", err)
		return err
	}

	log.Printf("Mutation succeeded: %s", op)
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

func parseMutationResponse(op string, status int, body []byte) error {
	if !isSuccessStatus(status) {
		return &ActionError{Op: op, Kind: KindHTTPStatus, Status: status, Message: envelopeMessage(body)}
	}
	if status == http.StatusNoContent {
		return nil
	}

	var env models.MutationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &ActionError{Op: op, Kind: KindMalformed, Status: status, Err: err}
	}
	if env.Success == nil {
		return &ActionError{Op: op, Kind: KindMalformed, Status: status, Err: errors.New("missing success flag")}
	}
	if !*env.Success {
		return &ActionError{Op: op, Kind: KindRejected, Status: status, Message: env.Message}
	}
	return nil
}

func flightKey(action Action, ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return string(action) + ":" + strings.Join(sorted, ",")
}
