package effectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/models"
)

// DecisionSource marks security decisions created by executed actions.
const DecisionSource = "aegis"

// BlockIPRequest is the action data of a BlockIP suggestion.
type BlockIPRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason,omitempty"`
}

type blockIPBefore struct {
	AlreadyBlocked bool `json:"already_blocked"`
}

type blockIPAfter struct {
	DecisionUUID string `json:"decision_uuid"`
	IP           string `json:"ip"`
}

// Default narrowest-allowed prefixes for CIDR blocks.
const (
	DefaultMinPrefixV4 = 8
	DefaultMinPrefixV6 = 32
)

// BlockIP writes a block decision enforced by the request gate.
type BlockIP struct {
	db          *gorm.DB
	minPrefixV4 int
	minPrefixV6 int
	onChange    func()
}

// BlockIPOption configures a BlockIP effector.
type BlockIPOption func(*BlockIP)

// WithMinPrefix rejects CIDR blocks broader than /v4 (IPv4) or /v6 (IPv6).
// Non-positive values keep the defaults.
func WithMinPrefix(v4, v6 int) BlockIPOption {
	return func(b *BlockIP) {
		if v4 > 0 {
			b.minPrefixV4 = v4
		}
		if v6 > 0 {
			b.minPrefixV6 = v6
		}
	}
}

// WithDecisionHook registers fn to run after a decision is written or removed.
func WithDecisionHook(fn func()) BlockIPOption {
	return func(b *BlockIP) { b.onChange = fn }
}

// NewBlockIP returns a BlockIP effector writing to db.
func NewBlockIP(db *gorm.DB, opts ...BlockIPOption) *BlockIP {
	b := &BlockIP{db: db, minPrefixV4: DefaultMinPrefixV4, minPrefixV6: DefaultMinPrefixV6}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BlockIP) parse(data json.RawMessage) (BlockIPRequest, error) {
	var req BlockIPRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode block_ip data: %w", err)
	}
	req.IP = strings.TrimSpace(req.IP)
	if req.IP == "" {
		return req, errors.New("ip is required")
	}

	ip := net.ParseIP(req.IP)
	if ip == nil {
		base, cidr, err := net.ParseCIDR(req.IP)
		if err != nil {
			return req, fmt.Errorf("invalid ip or cidr %q", req.IP)
		}
		ones, _ := cidr.Mask.Size()
		floor := b.minPrefixV6
		if base.To4() != nil {
			floor = b.minPrefixV4
		}
		if ones < floor {
			return req, fmt.Errorf("cidr %q is broader than /%d", req.IP, floor)
		}
		ip = cidr.IP
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() {
		return req, fmt.Errorf("refusing to block %q: loopback, unspecified or multicast address", req.IP)
	}
	return req, nil
}

// Validate implements actions.Validator.
func (b *BlockIP) Validate(data json.RawMessage) error {
	_, err := b.parse(data)
	return err
}

func (b *BlockIP) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}

// Execute creates the decision. An existing block for the same address is
// recorded in the before state and left untouched by the compensator.
func (b *BlockIP) Execute(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	req, err := b.parse(data)
	if err != nil {
		return nil, nil, err
	}

	var existing int64
	if err := b.db.WithContext(ctx).Model(&models.SecurityDecision{}).
		Where("ip = ? AND action = ?", req.IP, "block").
		Count(&existing).Error; err != nil {
		return nil, nil, fmt.Errorf("check existing decisions: %w", err)
	}

	decision := models.SecurityDecision{
		UUID:    uuid.NewString(),
		Source:  DecisionSource,
		Action:  "block",
		IP:      req.IP,
		Details: req.Reason,
	}
	if err := b.db.WithContext(ctx).Create(&decision).Error; err != nil {
		return nil, nil, fmt.Errorf("create block decision: %w", err)
	}
	b.changed()

	before, _ := json.Marshal(blockIPBefore{AlreadyBlocked: existing > 0})
	after, _ := json.Marshal(blockIPAfter{DecisionUUID: decision.UUID, IP: req.IP})
	return before, after, nil
}

// Rollback deletes the decision created by Execute.
func (b *BlockIP) Rollback(ctx context.Context, before, after json.RawMessage) error {
	var state blockIPAfter
	if err := json.Unmarshal(after, &state); err != nil || state.DecisionUUID == "" {
		return fmt.Errorf("after state has no decision uuid")
	}
	res := b.db.WithContext(ctx).Where("uuid = ?", state.DecisionUUID).Delete(&models.SecurityDecision{})
	if res.Error != nil {
		return fmt.Errorf("delete block decision: %w", res.Error)
	}
	b.changed()
	// Already gone counts as reversed.
	return nil
}
