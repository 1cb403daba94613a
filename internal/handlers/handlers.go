package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/alz-api/internal/model"
	"github.com/Brownie44l1/alz-api/internal/predict"
)

// FormField is the multipart field carrying the image.
const FormField = "file"

// Client-facing messages.
const (
	MsgRunning        = "Alzheimer's API is running!"
	MsgModelNotLoaded = "Model is not loaded."
	MsgNoFilePart     = "No 'file' part in the request."
	MsgNoSelectedFile = "No selected file."
	MsgProcessFailed  = "Failed to process image."
	msgUnexpected     = "An error occurred: %v"
)

var (
	errNoFilePart     = errors.New("no file part")
	errNoSelectedFile = errors.New("no selected file")
)

// PredictionService classifies uploaded image bytes.
type PredictionService interface {
	Available() bool
	Predict(ctx context.Context, raw []byte) (model.Prediction, error)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	svc PredictionService
}

func NewHandler(svc PredictionService) *Handler {
	return &Handler{svc: svc}
}

// Index is the liveness probe. It answers regardless of model state.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, MessageResponse{Message: MsgRunning})
}

func (h *Handler) Predict(c *gin.Context) {
	if !h.svc.Available() {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: MsgModelNotLoaded})
		return
	}

	data, err := readUpload(c.Request)
	switch {
	case errors.Is(err, errNoFilePart):
		slog.Warn("upload without file part", "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: MsgNoFilePart})
		return
	case errors.Is(err, errNoSelectedFile):
		slog.Warn("upload with empty filename", "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: MsgNoSelectedFile})
		return
	case err != nil:
		slog.Error("failed to read upload", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprintf(msgUnexpected, err)})
		return
	}

	result, err := h.svc.Predict(c.Request.Context(), data)
	switch {
	case errors.Is(err, predict.ErrModelUnavailable):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: MsgModelNotLoaded})
		return
	case errors.Is(err, predict.ErrProcessing):
		slog.Error("prediction failed", "error", err, "bytes", len(data))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: MsgProcessFailed})
		return
	case err != nil:
		slog.Error("unexpected prediction error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprintf(msgUnexpected, err)})
		return
	}

	slog.Info("prediction", "class", result.Class, "confidence", result.Confidence, "bytes", len(data))
	c.JSON(http.StatusOK, result)
}

// readUpload returns the content of the first FormField part that declares a
// filename. A part without a filename parameter is a plain form value and
// does not count as a file.
func readUpload(r *http.Request) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFilePart
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFilePart
		}
		if err != nil {
			slog.Debug("malformed multipart body", "error", err)
			return nil, errNoFilePart
		}
		if part.FormName() != FormField {
			continue
		}

		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			continue
		}
		filename, ok := params["filename"]
		if !ok {
			continue
		}
		if filename == "" {
			return nil, errNoSelectedFile
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", filename, err)
		}
		return data, nil
	}
}
