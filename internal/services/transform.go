package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/comfyui"
	"github.com/yungbote/ghiblify-backend/internal/platform/gcp"
	"github.com/yungbote/ghiblify-backend/internal/platform/imageutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/platform/replicate"
)

const (
	ProviderReplicate = "replicate"
	ProviderComfyUI   = "comfyui"

	GhibliModelVersion = "4b82bb7dbb3b153882a0c34d7f2cbc4f7012ea7eaddb4f65c257a3403c9b3253"
	// GhiblifyAPIModelVersion backs the API-key prediction proxy.
	GhiblifyAPIModelVersion = "328bd9692d29d6781034e3acab8cf3fcb122161e6f651be7a7dcec3c8ee9b77c"

	GhibliPrompt         = "Ghibli style, family friendly, wholesome, clean, safe for work"
	GhibliNegativePrompt = "nsfw, nudity, adult content, inappropriate, unsafe for work, violence, gore, disturbing content"

	MsgPhotoProcessed = "Photo processed successfully"

	// DefaultMaxImageSide bounds uploads before they reach a provider.
	DefaultMaxImageSide = 2048
)

type TransformRequest struct {
	Address  string
	Provider string
	Image    []byte
	// CreationID continues an existing creation instead of starting one.
	CreationID       string
	SourceArtifactID string
}

type TransformResult struct {
	Message    string `json:"message"`
	Original   string `json:"original"`
	Result     string `json:"result"`
	Credits    int64  `json:"credits"`
	CreationID string `json:"creation_id,omitempty"`
	OutputURL  string `json:"output_url,omitempty"`

	resultPNG []byte
}

// ResultPNG is the normalized output image.
func (r *TransformResult) ResultPNG() []byte { return r.resultPNG }

type TransformService interface {
	Transform(ctx context.Context, req TransformRequest) (*TransformResult, error)
	CreatePrediction(ctx context.Context, imageURL string) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

type transformService struct {
	log       *logger.Logger
	credits   CreditsService
	creations CreationsService
	bucket    gcp.BucketService
	replicate replicate.Client
	comfy     comfyui.Client
	maxSide   int
}

// NewTransformService accepts nil for any provider that is not configured, and
// a nil bucket when results should not be persisted.
func NewTransformService(
	log *logger.Logger,
	credits CreditsService,
	creationsSvc CreationsService,
	bucket gcp.BucketService,
	rep replicate.Client,
	comfy comfyui.Client,
) TransformService {
	return &transformService{
		log:       log.With("service", "TransformService"),
		credits:   credits,
		creations: creationsSvc,
		bucket:    bucket,
		replicate: rep,
		comfy:     comfy,
		maxSide:   DefaultMaxImageSide,
	}
}

func providerName(p string) string {
	switch p {
	case ProviderComfyUI:
		return "ComfyUI"
	case ProviderReplicate:
		return "Replicate"
	}
	return p
}

func ghibliInput(png []byte) map[string]any {
	return map[string]any{
		"prompt":              GhibliPrompt,
		"image":               imageutil.PNGDataURI(png),
		"num_outputs":         1,
		"width":               1024,
		"height":              1024,
		"num_inference_steps": 50,
		"guidance_scale":      7.5,
		"prompt_strength":     0.8,
		"refine":              "expert_ensemble_refiner",
		"high_noise_frac":     0.8,
		"negative_prompt":     GhibliNegativePrompt,
	}
}

func (s *transformService) Transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	addr, err := ValidateAddress(req.Address)
	if err != nil {
		return nil, err
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if err := s.available(provider); err != nil {
		return nil, err
	}
	api := providerName(provider)

	// reject bad uploads before spending
	in, err := imageutil.ToPNG(req.Image, s.maxSide)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_image", fmt.Errorf("Invalid image file: %w", err))
	}
	balance, err := s.credits.SpendForAPI(ctx, addr, api)
	if err != nil {
		return nil, err
	}

	s.log.Info("Processing image", "provider", provider, "address", addr, "width", in.Width, "height", in.Height)
	started := time.Now()
	outURL, raw, err := s.run(ctx, provider, in.PNG)
	var out *imageutil.Normalized
	if err == nil {
		if out, err = imageutil.ToPNG(raw, 0); err != nil {
			err = fmt.Errorf("decode %s output: %w", api, err)
		}
	}
	if err != nil {
		observability.Current().ObserveTransform(provider, "error", time.Since(started))
		refunded := s.credits.Refund(ctx, addr, api)
		s.log.Error("Image transform failed", "provider", provider, "address", addr, "balance", refunded, "error", err)
		if errors.Is(err, comfyui.ErrTimeout) {
			return nil, apierr.WithMessage(http.StatusRequestTimeout, "transform_timeout", FriendlyError(err, api), err)
		}
		return nil, apierr.WithMessage(http.StatusInternalServerError, "transform_failed", FriendlyError(err, api), err)
	}

	observability.Current().ObserveTransform(provider, "ok", time.Since(started))
	res := &TransformResult{
		Message:   MsgPhotoProcessed,
		Original:  imageutil.PNGDataURI(in.PNG),
		Result:    imageutil.PNGDataURI(out.PNG),
		Credits:   balance,
		OutputURL: outURL,
		resultPNG: out.PNG,
	}
	inputURL, outputURL := s.persist(ctx, addr, in.PNG, out.PNG)
	if outputURL == "" {
		outputURL = outURL
	}
	if s.creations != nil {
		c, err := s.creations.Record(ctx, RecordInput{
			Address:          addr,
			Provider:         provider,
			InputURL:         inputURL,
			OutputURL:        outputURL,
			CreationID:       req.CreationID,
			SourceArtifactID: req.SourceArtifactID,
		})
		if err != nil {
			s.log.Warn("Recording creation failed", "address", addr, "error", err)
		} else {
			res.CreationID = c.ID
		}
	}
	return res, nil
}

func (s *transformService) available(provider string) error {
	switch provider {
	case ProviderReplicate:
		if s.replicate == nil {
			return apierr.Newf(http.StatusServiceUnavailable, "provider_unavailable", "Replicate is not configured")
		}
	case ProviderComfyUI:
		if s.comfy == nil {
			return apierr.Newf(http.StatusServiceUnavailable, "provider_unavailable", "ComfyUI is not configured")
		}
	default:
		return apierr.BadRequest("unknown_provider", "Unknown provider: %s", provider)
	}
	return nil
}

// run returns the provider's output URL and the downloaded image.
func (s *transformService) run(ctx context.Context, provider string, png []byte) (string, []byte, error) {
	switch provider {
	case ProviderComfyUI:
		u, err := s.comfy.Process(ctx, png)
		if err != nil {
			return "", nil, err
		}
		raw, err := s.comfy.Download(ctx, u)
		if err != nil {
			return "", nil, fmt.Errorf("download ComfyUI output: %w", err)
		}
		return u, raw, nil
	default:
		p, err := s.replicate.Run(ctx, GhibliModelVersion, ghibliInput(png))
		if err != nil {
			return "", nil, err
		}
		u := p.OutputURLs()[0]
		raw, err := s.replicate.Download(ctx, u)
		if err != nil {
			return "", nil, fmt.Errorf("download Replicate output: %w", err)
		}
		return u, raw, nil
	}
}

// persist stores both images and returns their public URLs. Storage failures
// are logged; the transform already succeeded and was paid for.
func (s *transformService) persist(ctx context.Context, addr string, input, output []byte) (string, string) {
	if s.bucket == nil {
		return "", ""
	}
	// the original and its result share a key across the two categories
	key := addr + "/" + newID() + ".png"
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryPhoto, key, bytes.NewReader(input)); err != nil {
		s.log.Warn("Storing original failed", "key", key, "error", err)
		return "", ""
	}
	inURL := s.bucket.GetPublicURL(gcp.BucketCategoryPhoto, key)
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryResult, key, bytes.NewReader(output)); err != nil {
		s.log.Warn("Storing result failed", "key", key, "error", err)
		return inURL, ""
	}
	return inURL, s.bucket.GetPublicURL(gcp.BucketCategoryResult, key)
}

func (s *transformService) CreatePrediction(ctx context.Context, imageURL string) (*replicate.Prediction, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, apierr.BadRequest("missing_image_url", "imageUrl is required")
	}
	if s.replicate == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "provider_unavailable", "Replicate is not configured")
	}
	p, err := s.replicate.CreatePrediction(ctx, GhiblifyAPIModelVersion, map[string]any{"image": imageURL})
	if err != nil {
		return nil, upstreamError("Replicate", err)
	}
	return p, nil
}

func (s *transformService) GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierr.BadRequest("missing_prediction_id", "prediction id is required")
	}
	if s.replicate == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "provider_unavailable", "Replicate is not configured")
	}
	p, err := s.replicate.GetPrediction(ctx, id)
	if err != nil {
		return nil, upstreamError("Replicate", err)
	}
	return p, nil
}

// upstreamError keeps the upstream HTTP status when there is one.
func upstreamError(service string, err error) error {
	var se *httpx.StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 {
		return apierr.Newf(se.StatusCode, "upstream_error", "%s API error: %s", service, se.Body)
	}
	return apierr.Newf(http.StatusBadGateway, "upstream_error", "%s request failed: %v", service, err)
}
