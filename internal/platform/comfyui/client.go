package comfyui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

const (
	StateCompleted = "COMPLETED"
	StateError     = "ERROR"
)

var (
	ErrTimeout      = errors.New("comfyui task timed out")
	ErrImgBBMissing = errors.New("ImgBB API key not configured")
	ErrImgBBUpload  = errors.New("failed to upload image to ImgBB")
	ErrNoOutputURLs = errors.New("no output URLs received")
)

// TaskError carries the workflow's own error message.
type TaskError struct {
	Msg string
}

func (e *TaskError) Error() string { return "workflow task error: " + e.Msg }

type Config struct {
	APIKey       string
	BaseURL      string
	WorkflowID   string
	ImgBBAPIKey  string
	ImgBBURL     string
	PollInterval time.Duration
	MaxAttempts  int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:       envutil.String("COMFY_UI_API_KEY", ""),
		BaseURL:      envutil.String("COMFY_UI_BASE_URL", "https://api.comfyonline.app/api"),
		WorkflowID:   envutil.String("COMFY_UI_WORKFLOW_ID", "0f9f99b9-69e7-4651-a37f-7d997b159ce6"),
		ImgBBAPIKey:  envutil.String("IMGBB_API_KEY", ""),
		ImgBBURL:     envutil.String("IMGBB_UPLOAD_URL", "https://api.imgbb.com/1/upload"),
		PollInterval: envutil.Duration("COMFY_UI_POLL_INTERVAL", time.Second),
		MaxAttempts:  envutil.Int("COMFY_UI_MAX_ATTEMPTS", 90),
	}
}

type Client interface {
	// Process uploads png, runs the workflow and returns the first output URL.
	Process(ctx context.Context, png []byte) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

type client struct {
	log *logger.Logger
	cfg Config
	api *httpx.JSONClient
	hc  *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing COMFY_UI_API_KEY")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 90
	}
	hc := &http.Client{Timeout: 90 * time.Second}
	return &client{
		log: log.With("client", "ComfyUIClient"),
		cfg: cfg,
		hc:  hc,
		api: &httpx.JSONClient{
			Service:    "comfyui",
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			Header:     http.Header{"Authorization": []string{"Bearer " + cfg.APIKey}},
			HTTPClient: hc,
			MaxRetries: 1,
			Log:        log,
		},
	}, nil
}

type envelope struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	Data     struct {
		TaskID string `json:"task_id"`
		State  string `json:"state"`
		Output struct {
			OutputURLList []string `json:"output_url_list"`
		} `json:"output"`
	} `json:"data"`
}

func (e envelope) errMsg() string {
	if e.ErrorMsg == "" {
		return "Unknown error"
	}
	return e.ErrorMsg
}

func (c *client) Process(ctx context.Context, png []byte) (string, error) {
	imageURL, err := c.uploadImgBB(ctx, png)
	if err != nil {
		return "", err
	}
	taskID, err := c.runWorkflow(ctx, imageURL)
	if err != nil {
		return "", err
	}
	return c.waitForOutput(ctx, taskID)
}

func (c *client) uploadImgBB(ctx context.Context, png []byte) (string, error) {
	if strings.TrimSpace(c.cfg.ImgBBAPIKey) == "" {
		return "", ErrImgBBMissing
	}
	form := url.Values{}
	form.Set("key", c.cfg.ImgBBAPIKey)
	form.Set("image", base64.StdEncoding.EncodeToString(png))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ImgBBURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImgBBUpload, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: http %d", ErrImgBBUpload, resp.StatusCode)
	}
	var out struct {
		Success bool `json:"success"`
		Data    struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || !out.Success || out.Data.URL == "" {
		return "", ErrImgBBUpload
	}
	c.log.Info("Image uploaded to ImgBB", "url", out.Data.URL)
	return out.Data.URL, nil
}

func (c *client) runWorkflow(ctx context.Context, imageURL string) (string, error) {
	payload := map[string]any{
		"workflow_id": c.cfg.WorkflowID,
		"input": map[string]any{
			"LoadImage_image_17":    imageURL,
			"CLIPTextEncode_text_7": "",
		},
	}
	var env envelope
	if err := c.api.Do(ctx, http.MethodPost, "/run_workflow", payload, &env); err != nil {
		return "", fmt.Errorf("create workflow task: %w", err)
	}
	if !env.Success {
		return "", &TaskError{Msg: env.errMsg()}
	}
	if env.Data.TaskID == "" {
		return "", errors.New("no task ID received")
	}
	c.log.Info("Workflow task created", "task_id", env.Data.TaskID)
	return env.Data.TaskID, nil
}

func (c *client) waitForOutput(ctx context.Context, taskID string) (string, error) {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		var env envelope
		err := c.api.Do(ctx, http.MethodPost, "/query_run_workflow_status", map[string]string{"task_id": taskID}, &env)
		switch {
		case err == nil && !env.Success:
			return "", &TaskError{Msg: env.errMsg()}
		case err == nil && env.Data.State == StateCompleted:
			if len(env.Data.Output.OutputURLList) == 0 {
				return "", ErrNoOutputURLs
			}
			return env.Data.Output.OutputURLList[0], nil
		case err == nil && env.Data.State == StateError:
			return "", &TaskError{Msg: env.errMsg()}
		case err != nil && !httpx.IsRetryableError(err):
			return "", fmt.Errorf("check task status: %w", err)
		}
		c.log.Debug("Workflow task pending", "task_id", taskID, "attempt", attempt, "state", env.Data.State)
		if err := httpx.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return "", err
		}
	}
	return "", ErrTimeout
}

func (c *client) Download(ctx context.Context, u string) ([]byte, error) {
	return httpx.Download(ctx, c.hc, u, http.Header{"Authorization": []string{"Bearer " + c.cfg.APIKey}}, 0)
}
