package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/platform/memoryapi"
)

const (
	IdentifierAddress   = "address"
	IdentifierFarcaster = "farcaster"
)

type MemoryStatus struct {
	Available  bool    `json:"available"`
	Configured bool    `json:"configured"`
	BaseURL    *string `json:"base_url"`
}

type GraphResponse struct {
	Identifier     string          `json:"identifier"`
	IdentifierType string          `json:"identifier_type"`
	IdentityGraph  memoryapi.Graph `json:"identity_graph,omitempty"`
	SocialGraph    memoryapi.Graph `json:"social_graph,omitempty"`
}

type ProfileSection struct {
	Address    string          `json:"address,omitempty"`
	Username   *string         `json:"username,omitempty"`
	Identities memoryapi.Graph `json:"identities"`
}

type UnifiedProfile struct {
	Wallet    ProfileSection  `json:"wallet"`
	Farcaster ProfileSection  `json:"farcaster"`
	Social    memoryapi.Graph `json:"social"`
	Timestamp int64           `json:"timestamp"`
}

type FarcasterWallet struct {
	FarcasterUsername string  `json:"farcaster_username"`
	WalletAddress     *string `json:"wallet_address"`
}

type MemoryService interface {
	Status() MemoryStatus
	IdentityGraph(ctx context.Context, identifier, identifierType string) (*GraphResponse, error)
	SocialGraph(ctx context.Context, identifier, identifierType string) (*GraphResponse, error)
	// UnifiedProfile degrades the farcaster and social parts to empty graphs.
	UnifiedProfile(ctx context.Context, address, farcasterUsername string) (*UnifiedProfile, error)
	WalletForFarcaster(ctx context.Context, username string) (*FarcasterWallet, error)
}

type memoryService struct {
	log    *logger.Logger
	client memoryapi.Client
}

func NewMemoryService(log *logger.Logger, client memoryapi.Client) MemoryService {
	return &memoryService{log: log.With("service", "MemoryService"), client: client}
}

func (s *memoryService) configured() bool { return s.client != nil && s.client.Available() }

func (s *memoryService) Status() MemoryStatus {
	st := MemoryStatus{Available: s.configured(), Configured: s.configured()}
	if st.Available {
		u := s.client.BaseURL()
		st.BaseURL = &u
	}
	return st
}

func (s *memoryService) IdentityGraph(ctx context.Context, identifier, identifierType string) (*GraphResponse, error) {
	g, err := s.identity(ctx, identifier, identifierType)
	if err != nil {
		return nil, err
	}
	return &GraphResponse{Identifier: identifier, IdentifierType: identifierType, IdentityGraph: g}, nil
}

func (s *memoryService) SocialGraph(ctx context.Context, identifier, identifierType string) (*GraphResponse, error) {
	g, err := s.social(ctx, identifier, identifierType)
	if err != nil {
		return nil, err
	}
	return &GraphResponse{Identifier: identifier, IdentifierType: identifierType, SocialGraph: g}, nil
}

func (s *memoryService) identity(ctx context.Context, identifier, identifierType string) (memoryapi.Graph, error) {
	if err := s.check(identifier, identifierType); err != nil {
		return nil, err
	}
	g, err := s.client.IdentityGraph(ctx, identifier, identifierType)
	return g, memoryError(err)
}

func (s *memoryService) social(ctx context.Context, identifier, identifierType string) (memoryapi.Graph, error) {
	if err := s.check(identifier, identifierType); err != nil {
		return nil, err
	}
	g, err := s.client.SocialGraph(ctx, identifier, identifierType)
	return g, memoryError(err)
}

func (s *memoryService) check(identifier, identifierType string) error {
	if !s.configured() {
		return apierr.New(http.StatusServiceUnavailable, "memory_api_unavailable", memoryapi.ErrNotConfigured)
	}
	if strings.TrimSpace(identifier) == "" || strings.TrimSpace(identifierType) == "" {
		return apierr.BadRequest("missing_identifier", "identifier and identifier_type are required")
	}
	return nil
}

func (s *memoryService) UnifiedProfile(ctx context.Context, address, farcasterUsername string) (*UnifiedProfile, error) {
	if !s.configured() {
		return nil, apierr.New(http.StatusServiceUnavailable, "memory_api_unavailable", memoryapi.ErrNotConfigured)
	}
	farcasterUsername = strings.TrimSpace(farcasterUsername)

	var walletGraph memoryapi.Graph
	farcasterGraph := memoryapi.Graph{}
	socialGraph := memoryapi.Graph{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		walletGraph, err = s.identity(gctx, address, IdentifierAddress)
		return err
	})
	if farcasterUsername != "" {
		g.Go(func() error {
			if fg, err := s.identity(gctx, farcasterUsername, IdentifierFarcaster); err != nil {
				s.log.Warn("Farcaster identity graph unavailable", "username", farcasterUsername, "error", err)
			} else if fg != nil {
				farcasterGraph = fg
			}
			return nil
		})
	}
	g.Go(func() error {
		if sg, err := s.social(gctx, address, IdentifierAddress); err != nil {
			s.log.Warn("Social graph unavailable", "address", address, "error", err)
		} else if sg != nil {
			socialGraph = sg
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &UnifiedProfile{
		Wallet:    ProfileSection{Address: address, Identities: walletGraph},
		Farcaster: ProfileSection{Identities: farcasterGraph},
		Social:    socialGraph,
		Timestamp: time.Now().Unix(),
	}
	if farcasterUsername != "" {
		out.Farcaster.Username = &farcasterUsername
	}
	return out, nil
}

func (s *memoryService) WalletForFarcaster(ctx context.Context, username string) (*FarcasterWallet, error) {
	g, err := s.identity(ctx, username, IdentifierFarcaster)
	if err != nil {
		return nil, err
	}
	out := &FarcasterWallet{FarcasterUsername: username}
	if eth, ok := g["ethereum"].(map[string]any); ok {
		if id, ok := eth["id"].(string); ok && id != "" {
			out.WalletAddress = &id
		}
	}
	return out, nil
}

func memoryError(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, memoryapi.ErrNotConfigured) {
		return apierr.New(http.StatusServiceUnavailable, "memory_api_unavailable", err)
	}
	var se *httpx.StatusError
	if errors.As(err, &se) || httpx.IsRetryableError(err) {
		return apierr.Newf(http.StatusBadGateway, "memory_api_error", "Memory API request failed: %v", err)
	}
	return apierr.Newf(http.StatusInternalServerError, "memory_api_error", "Memory API call failed: %v", err)
}
