package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
	"github.com/crimson-sun/wastenot/internal/feedback"
	"github.com/crimson-sun/wastenot/internal/model"
)

const (
	msgNoImages    = "Please upload ingredient images."
	msgNoDetection = "No valid ingredients detected."
	msgNoMatches   = "No recipes use the detected ingredients."
	multipartMem   = 8 << 20
)

// ClassificationJSON is one classified image.
type ClassificationJSON struct {
	Name       string  `json:"name"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
	Known      bool    `json:"known"`
	Error      string  `json:"error,omitempty"`
}

// RecommendationJSON is the response of POST /api/v1/recommendations.
type RecommendationJSON struct {
	Images   []ClassificationJSON `json:"images"`
	Detected []string             `json:"detected"`
	Recipes  []RecipeCard         `json:"recipes"`
	Message  string               `json:"message,omitempty"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	PredictedIngredient string `json:"predicted_ingredient"`
	FeedbackType        string `json:"feedback_type"`
	Comment             string `json:"comment"`
}

func classificationJSON(name string, res model.ClassificationResult) ClassificationJSON {
	return ClassificationJSON{
		Name:       name,
		Label:      res.Resolved(),
		Confidence: res.Confidence(),
		Known:      res.IsKnown(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecipes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"recipes": s.render.Cards(s.catalog.Recipes()),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	imgs, herr := s.readImages(w, r, "image")
	if herr != nil {
		writeError(w, herr.status, herr.msg)
		return
	}
	if len(imgs) == 0 {
		writeError(w, http.StatusBadRequest, "Please upload an ingredient image.")
		return
	}
	img := imgs[0]

	res, err := s.classifier.Classify(r.Context(), img)
	if err != nil {
		var inErr *preprocess.InputError
		if errors.As(err, &inErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("classification failed", "image", img.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "Classification failed.")
		return
	}
	writeJSON(w, http.StatusOK, classificationJSON(img.Name, res))
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	imgs, herr := s.readImages(w, r, "images")
	if herr != nil {
		writeError(w, herr.status, herr.msg)
		return
	}
	if len(imgs) == 0 {
		writeError(w, http.StatusBadRequest, msgNoImages)
		return
	}
	if len(imgs) > s.maxImages {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("At most %d images per request.", s.maxImages))
		return
	}

	rec, err := s.recommender.Recommend(r.Context(), imgs)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Request cancelled or timed out.")
		return
	}

	resp := RecommendationJSON{
		Images:   make([]ClassificationJSON, len(rec.Outcomes)),
		Detected: rec.Detected.Names(),
		Recipes:  s.render.Ranked(rec.Matches),
	}
	for i, o := range rec.Outcomes {
		if o.Err != nil {
			resp.Images[i] = ClassificationJSON{Name: o.Name, Error: o.Err.Error()}
			continue
		}
		resp.Images[i] = classificationJSON(o.Name, o.Result)
	}
	switch {
	case rec.Detected.Empty():
		resp.Message = msgNoDetection
	case len(rec.Matches) == 0:
		resp.Message = msgNoMatches
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFeedbackBytes)

	var req FeedbackRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid feedback body.")
		return
	}

	msg, err := s.feedback.Record(r.Context(), req.PredictedIngredient, req.FeedbackType, req.Comment)
	if err != nil {
		var verr *feedback.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("feedback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Feedback could not be recorded.")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// uploadError is a client-facing upload failure.
type uploadError struct {
	status int
	msg    string
}

// readImages parses a multipart form and returns the files under field.
// A request that is not multipart yields no images.
func (s *Server) readImages(w http.ResponseWriter, r *http.Request, field string) ([]model.ImageInput, *uploadError) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMem); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes.", tooBig.Limit)}
		case errors.Is(err, http.ErrNotMultipart):
			return nil, nil
		default:
			return nil, &uploadError{http.StatusBadRequest, "Invalid upload: " + err.Error()}
		}
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[field]
	imgs := make([]model.ImageInput, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, &uploadError{http.StatusBadRequest, fmt.Sprintf("Could not read %s.", fh.Filename)}
		}
		imgs = append(imgs, model.ImageInput{Name: fh.Filename, Data: data})
	}
	return imgs, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
