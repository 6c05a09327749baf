package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/ghiblify-backend/internal/domain/creations"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	MaxCreationsPerUser  = 50
	DefaultCreationsPage = 20
)

// RecordInput describes one generated image. CreationID, when it names a
// creation the owner already has, appends the output instead of starting a
// new creation.
type RecordInput struct {
	Address          string
	Provider         string
	InputURL         string
	OutputURL        string
	CreationID       string
	SourceArtifactID string
	OutputArtifactID string
	Params           map[string]any
}

type CreationsPage struct {
	Creations []creations.Summary `json:"creations"`
	Limit     int                 `json:"limit"`
	Offset    int                 `json:"offset"`
}

type CreationsService interface {
	Record(ctx context.Context, in RecordInput) (*creations.Creation, error)
	List(ctx context.Context, address string, limit, offset int) (*CreationsPage, error)
	// Get returns nil when the creation is missing or owned by someone else.
	Get(ctx context.Context, address, id string) (*creations.Creation, error)
}

type creationsService struct {
	log   *logger.Logger
	store store.KV
	now   func() time.Time
}

func NewCreationsService(log *logger.Logger, kv store.KV) CreationsService {
	return &creationsService{
		log:   log.With("service", "CreationsService"),
		store: kv,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func newID() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

func (s *creationsService) Record(ctx context.Context, in RecordInput) (*creations.Creation, error) {
	addr, err := ValidateAddress(in.Address)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var c *creations.Creation
	if in.CreationID != "" {
		if c, err = s.Get(ctx, addr, in.CreationID); err != nil {
			return nil, err
		}
	}
	if c == nil {
		c = &creations.Creation{
			ID:           newID(),
			OwnerAddress: addr,
			Provider:     in.Provider,
			SourceURL:    in.InputURL,
			Params:       in.Params,
			CreatedAt:    now,
		}
		c.Artifacts = append(c.Artifacts, creations.Artifact{
			ID:        newID(),
			Type:      creations.TypeImage,
			Role:      creations.RoleInput,
			URL:       in.InputURL,
			Provider:  in.Provider,
			CreatedAt: now,
		})
		if err := s.store.PushCapped(ctx, store.CreationsKey(addr), c.ID, MaxCreationsPerUser); err != nil {
			return nil, fmt.Errorf("index creation: %w", err)
		}
	}

	out := creations.Artifact{
		ID:               in.OutputArtifactID,
		Type:             creations.TypeImage,
		Role:             creations.RoleOutput,
		URL:              in.OutputURL,
		Provider:         in.Provider,
		Action:           creations.ActionGhiblify,
		SourceArtifactID: in.SourceArtifactID,
		Params:           in.Params,
		CreatedAt:        now,
	}
	if out.ID == "" {
		out.ID = newID()
	}
	if !c.HasArtifact(out.ID) {
		c.Artifacts = append(c.Artifacts, out)
	}
	c.UpdatedAt = now

	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode creation: %w", err)
	}
	if err := s.store.Put(ctx, store.CreationKey(c.ID), string(raw), 0); err != nil {
		return nil, fmt.Errorf("save creation: %w", err)
	}
	s.log.Debug("Recorded creation", "creation_id", c.ID, "address", addr, "artifacts", len(c.Artifacts))
	return c, nil
}

func (s *creationsService) List(ctx context.Context, address string, limit, offset int) (*CreationsPage, error) {
	addr, err := requireAddress(address)
	if err != nil {
		return nil, err
	}
	limit = max(1, min(limit, MaxCreationsPerUser))
	offset = max(0, offset)

	ids, err := s.store.Range(ctx, store.CreationsKey(addr), int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, fmt.Errorf("list creations: %w", err)
	}
	page := &CreationsPage{Creations: []creations.Summary{}, Limit: limit, Offset: offset}
	for _, id := range ids {
		c, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if c == nil || c.OwnerAddress != addr {
			continue
		}
		page.Creations = append(page.Creations, c.Summary())
	}
	return page, nil
}

func (s *creationsService) Get(ctx context.Context, address, id string) (*creations.Creation, error) {
	addr, err := requireAddress(address)
	if err != nil {
		return nil, err
	}
	c, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil || c == nil {
		return nil, err
	}
	if c.OwnerAddress != addr {
		return nil, nil
	}
	return c, nil
}

// load treats an unreadable record as missing.
func (s *creationsService) load(ctx context.Context, id string) (*creations.Creation, error) {
	if id == "" {
		return nil, nil
	}
	raw, ok, err := s.store.Get(ctx, store.CreationKey(id))
	if err != nil {
		return nil, fmt.Errorf("read creation: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var c creations.Creation
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		s.log.Warn("Dropping unreadable creation", "creation_id", id, "error", err)
		return nil, nil
	}
	return &c, nil
}

func requireAddress(address string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", apierr.BadRequest("missing_address", "Wallet address is required")
	}
	return ValidateAddress(address)
}
