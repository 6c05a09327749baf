package creations

import "time"

const (
	RoleInput  = "input"
	RoleOutput = "output"

	ActionGhiblify = "ghiblify"

	TypeImage = "image"
)

type Artifact struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	Role             string         `json:"role"`
	URL              string         `json:"url"`
	Provider         string         `json:"provider"`
	Action           string         `json:"action,omitempty"`
	SourceArtifactID string         `json:"source_artifact_id,omitempty"`
	Params           map[string]any `json:"params,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Creation groups the input photo and every output generated from it.
type Creation struct {
	ID           string         `json:"id"`
	OwnerAddress string         `json:"owner_address"`
	Provider     string         `json:"provider"`
	SourceURL    string         `json:"source_url,omitempty"`
	Artifacts    []Artifact     `json:"artifacts"`
	Params       map[string]any `json:"params,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (c *Creation) HasArtifact(id string) bool {
	for _, a := range c.Artifacts {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Thumbnail is the most recent output, falling back to the source image.
func (c *Creation) Thumbnail() string {
	for i := len(c.Artifacts) - 1; i >= 0; i-- {
		if c.Artifacts[i].Role == RoleOutput && c.Artifacts[i].URL != "" {
			return c.Artifacts[i].URL
		}
	}
	return c.SourceURL
}

type Summary struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	ArtifactsCount int       `json:"artifacts_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (c *Creation) Summary() Summary {
	return Summary{
		ID:             c.ID,
		Provider:       c.Provider,
		ThumbnailURL:   c.Thumbnail(),
		ArtifactsCount: len(c.Artifacts),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
