package chathub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultUploadEndpoint = "https://www.bing.com/images/kblob"
	blobReferencePrefix   = "https://www.bing.com/images/blob?bcid="

	// MaxUploadBytes is the size above which images are downscaled first.
	MaxUploadBytes = 1 << 20
)

// ImageReference turns a blob id into the URL sent as a turn's image.
func ImageReference(blobID string) string {
	return blobReferencePrefix + blobID
}

type knowledgeRequest struct {
	ImageInfo        map[string]any   `json:"imageInfo"`
	KnowledgeRequest knowledgeOptions `json:"knowledgeRequest"`
}

type knowledgeOptions struct {
	InvokedSkills            []string        `json:"invokedSkills"`
	SubscriptionID           string          `json:"subscriptionId"`
	InvokedSkillsRequestData skillsRequest   `json:"invokedSkillsRequestData"`
	ConvoData                conversationRef `json:"convoData"`
}

type skillsRequest struct {
	EnableFaceBlur bool `json:"enableFaceBlur"`
}

type conversationRef struct {
	ConvoID   string `json:"convoid"`
	ConvoTone string `json:"convotone"`
}

type uploadResponse struct {
	BlobID          string `json:"blobId"`
	ProcessedBlobID string `json:"processedBlobId"`
}

// UploadOptions configures the image uploader.
type UploadOptions struct {
	Endpoint string
	Proxy    string
	Timeout  time.Duration
	Style    Style
}

// Uploader sends images to the knowledge blob endpoint.
type Uploader struct {
	client   *resty.Client
	endpoint string
	style    Style
	logger   zerolog.Logger
}

func NewUploader(opts UploadOptions, logger zerolog.Logger) *Uploader {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultUploadEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Style == "" {
		opts.Style = StyleCreative
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Referer", chatReferer).
		SetHeader("User-Agent", edgeUserAgent)
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}

	return &Uploader{
		client:   client,
		endpoint: opts.Endpoint,
		style:    opts.Style,
		logger:   logger.With().Str("component", "uploader").Logger(),
	}
}

// Upload compresses the image when needed and returns its blob id.
func (u *Uploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	format, err := detectFormat(filename, data)
	if err != nil {
		return "", newError(KindUpload, "unsupported image", filename, err)
	}

	if len(data) > MaxUploadBytes {
		original := len(data)
		data, err = downscale(data, format, MaxUploadBytes)
		if err != nil {
			return "", newError(KindUpload, "compress image", filename, err)
		}
		u.logger.Debug().
			Str("format", string(format)).
			Int("original_bytes", original).
			Int("compressed_bytes", len(data)).
			Msg("image downscaled")
	}

	payload, err := json.Marshal(knowledgeRequest{
		ImageInfo: map[string]any{},
		KnowledgeRequest: knowledgeOptions{
			InvokedSkills:            []string{"ImageById"},
			SubscriptionID:           "Bing.Chat.Multimodal",
			InvokedSkillsRequestData: skillsRequest{EnableFaceBlur: false},
			ConvoData:                conversationRef{ConvoTone: u.style.Tone()},
		},
	})
	if err != nil {
		return "", newError(KindUpload, "encode knowledge request", "", err)
	}

	resp, err := u.client.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"knowledgeRequest": string(payload),
			"imageBase64":      base64.StdEncoding.EncodeToString(data),
		}).
		Post(u.endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return "", cancelledError(ctx.Err())
		}
		return "", newError(KindUpload, "upload request failed", "", err)
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		return "", newError(KindUpload, "upload returned "+resp.Status(), string(body), nil)
	}
	if err := validateDocument(uploadResponseSchema, body); err != nil {
		return "", newError(KindUpload, "upload response has no blob id", string(body), err)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", newError(KindUpload, "upload returned malformed JSON", string(body), err)
	}
	return parsed.BlobID, nil
}
