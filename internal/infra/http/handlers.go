package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"credanchor/internal/domain"
	"credanchor/internal/usecase"
	"credanchor/pkg/proofhash"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead is the slack allowed on top of MAX_FILE_BYTES for
// multipart framing before the body is cut off.
const multipartOverhead = 64 << 10

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type uploadResponse struct {
	ProofHash     string `json:"proofHash"`
	StorageHandle string `json:"storageHandle"`
	Status        string `json:"status"`
	Kind          string `json:"kind"`
	Message       string `json:"message"`
}

type credentialResponse struct {
	ProofHash     string `json:"proofHash"`
	FileName      string `json:"fileName,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
	SizeBytes     int64  `json:"sizeBytes"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	StorageHandle string `json:"storageHandle,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type anchorResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"anchorType"`
	Status       string `json:"status"`
	Reference    string `json:"reference,omitempty"`
	TxID         string `json:"txId,omitempty"`
	BlockHeight  int64  `json:"blockHeight,omitempty"`
	BlockTime    string `json:"blockTime,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	PollAttempts int    `json:"pollAttempts"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type verificationResponse struct {
	ProofHashMatches   bool   `json:"proofHashMatches"`
	BlockchainVerified bool   `json:"blockchainVerified"`
	AnchorType         string `json:"anchorType,omitempty"`
}

type verifyResponse struct {
	Exists       bool                  `json:"exists"`
	Credential   *credentialResponse   `json:"credential,omitempty"`
	Anchoring    *anchorResponse       `json:"anchoring,omitempty"`
	Verification *verificationResponse `json:"verification,omitempty"`
}

type listResponse struct {
	Items []credentialResponse `json:"items"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
	Total int64                `json:"total"`
}

type historyResponse struct {
	ProofHash string           `json:"proofHash"`
	Anchors   []anchorResponse `json:"anchors"`
}

type verifyRequest struct {
	ProofHash string `json:"proofHash"`
}

type computeHashRequest struct {
	Data json.RawMessage `json:"data"`
	Type string          `json:"type"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"mode":      s.mode,
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.issuer == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "issuer not configured")
		return
	}
	if s.cfg.MaxFileBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxFileBytes+multipartOverhead)
	}

	payload, meta, err := s.readUpload(c)
	if err != nil {
		s.metrics.Upload("rejected")
		writeError(c, s.log, err)
		return
	}
	res, err := s.issuer.Issue(c.Request.Context(), payload, meta)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.metrics.Upload("rejected")
		} else {
			s.metrics.Upload("error")
		}
		writeError(c, s.log, err)
		return
	}

	status, message := http.StatusCreated, "credential issued"
	if res.Idempotent {
		status, message = http.StatusOK, "credential already issued"
		s.metrics.Upload("idempotent")
	} else {
		s.metrics.Upload("created")
	}
	c.JSON(status, uploadResponse{
		ProofHash:     res.Credential.ProofHash,
		StorageHandle: res.Credential.StorageHandle,
		Status:        res.Credential.Status,
		Kind:          string(res.Credential.Kind),
		Message:       message,
	})
}

// readUpload accepts a multipart "file", a form field "jsonData" or a JSON
// body carrying "jsonData".
func (s *Server) readUpload(c *gin.Context) (proofhash.Payload, usecase.IssueMetadata, error) {
	contentType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if contentType == "application/json" {
		return s.readJSONBody(c)
	}

	if header, err := c.FormFile("file"); err == nil {
		meta := usecase.IssueMetadata{
			FileName:     header.Filename,
			MimeType:     header.Header.Get("Content-Type"),
			DeclaredSize: header.Size,
			Source:       usecase.SourceFile,
		}
		if s.cfg.MaxFileBytes > 0 && header.Size > s.cfg.MaxFileBytes {
			return proofhash.Payload{}, meta, domain.NewTooLargeError("file", header.Size, s.cfg.MaxFileBytes)
		}
		f, err := header.Open()
		if err != nil {
			return proofhash.Payload{}, meta, domain.NewValidationError("file", "unreadable")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return proofhash.Payload{}, meta, domain.NewValidationError("file", "unreadable")
		}
		payload, err := proofhash.Detect(data)
		return payload, meta, err
	} else if isBodyTooLarge(err) {
		return proofhash.Payload{}, usecase.IssueMetadata{}, domain.NewTooLargeError("file", s.cfg.MaxFileBytes+1, s.cfg.MaxFileBytes)
	}

	raw, ok := c.GetPostForm("jsonData")
	if !ok {
		return proofhash.Payload{}, usecase.IssueMetadata{}, domain.NewValidationError("file", "a file or jsonData field is required")
	}
	return fieldPayload([]byte(raw), c.PostForm("fileName"))
}

func (s *Server) readJSONBody(c *gin.Context) (proofhash.Payload, usecase.IssueMetadata, error) {
	var body struct {
		JSONData json.RawMessage `json:"jsonData"`
		FileName string          `json:"fileName"`
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		if isBodyTooLarge(err) {
			return proofhash.Payload{}, usecase.IssueMetadata{}, domain.NewTooLargeError("jsonData", s.cfg.MaxFileBytes+1, s.cfg.MaxFileBytes)
		}
		return proofhash.Payload{}, usecase.IssueMetadata{}, domain.NewValidationError("body", "must be a JSON object")
	}
	if len(body.JSONData) == 0 || string(body.JSONData) == "null" {
		return proofhash.Payload{}, usecase.IssueMetadata{}, domain.NewValidationError("jsonData", "is required")
	}
	return fieldPayload(body.JSONData, body.FileName)
}

func fieldPayload(raw []byte, fileName string) (proofhash.Payload, usecase.IssueMetadata, error) {
	meta := usecase.IssueMetadata{
		FileName:     fileName,
		MimeType:     "application/json",
		DeclaredSize: int64(len(raw)),
		Source:       usecase.SourceField,
	}
	if meta.FileName == "" {
		meta.FileName = "credential.json"
	}
	payload, err := proofhash.FieldJSON(raw)
	if errors.Is(err, proofhash.ErrInvalidJSON) {
		return payload, meta, domain.NewValidationError("jsonData", "must be valid JSON")
	}
	return payload, meta, err
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.log, domain.NewValidationError("proofHash", "is required"))
		return
	}
	res, err := s.verifier.Verify(c.Request.Context(), req.ProofHash)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	s.metrics.Verification(res.Exists)
	if !res.Exists {
		c.JSON(http.StatusOK, verifyResponse{Exists: false})
		return
	}

	out := verifyResponse{
		Exists: true,
		Verification: &verificationResponse{
			ProofHashMatches:   res.ProofHashMatches,
			BlockchainVerified: res.BlockchainVerified,
		},
	}
	cred := toCredentialResponse(*res.Credential)
	cred.StorageHandle = ""
	out.Credential = &cred
	if res.Anchor != nil {
		anchor := toAnchorResponse(*res.Anchor)
		out.Anchoring = &anchor
		out.Verification.AnchorType = res.Anchor.Kind
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleComputeHash(c *gin.Context) {
	var req computeHashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.log, domain.NewValidationError("body", "must be a JSON object"))
		return
	}
	if len(req.Data) == 0 {
		writeError(c, s.log, domain.NewValidationError("data", "is required"))
		return
	}
	kind := strings.ToLower(strings.TrimSpace(req.Type))
	if kind == "" {
		kind = "json"
	}

	var proofHash string
	switch kind {
	case "json":
		payload, err := proofhash.FieldJSON(req.Data)
		if errors.Is(err, proofhash.ErrInvalidJSON) {
			err = domain.NewValidationError("data", "must be valid JSON")
		}
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		proofHash = payload.ProofHash()
	case "binary":
		var encoded string
		if err := json.Unmarshal(req.Data, &encoded); err != nil {
			writeError(c, s.log, domain.NewValidationError("data", "must be a base64 string"))
			return
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			writeError(c, s.log, domain.NewValidationError("data", "must be a base64 string"))
			return
		}
		proofHash = proofhash.HashBinary(data)
	default:
		writeError(c, s.log, domain.NewValidationError("type", "must be json or binary"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"proofHash": proofHash, "type": kind})
}

func (s *Server) handleList(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	limit, err := queryInt(c, "limit", usecase.DefaultPageLimit)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	res, err := s.admin.List(c.Request.Context(), page, limit)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	items := make([]credentialResponse, 0, len(res.Items))
	for _, cred := range res.Items {
		items = append(items, toCredentialResponse(cred))
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Page: res.Page, Limit: res.Limit, Total: res.Total})
}

func (s *Server) handleDelete(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("recordHandle"), "/")
	cred, err := s.admin.Delete(c.Request.Context(), ref)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	principal, _ := getPrincipal(c)
	s.log.Info("record deleted", zap.String("proof_hash", cred.ProofHash), zap.String("subject", principal.Subject))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "record deleted"})
}

func (s *Server) handleAnchorHistory(c *gin.Context) {
	anchors, err := s.admin.AnchorHistory(c.Request.Context(), c.Param("proofHash"))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	out := historyResponse{ProofHash: strings.ToLower(c.Param("proofHash")), Anchors: make([]anchorResponse, 0, len(anchors))}
	for _, a := range anchors {
		out.Anchors = append(out.Anchors, toAnchorResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAnchorRetry(c *gin.Context) {
	proofHash, err := usecase.NormalizeProofHash("proofHash", c.Param("proofHash"))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	anchor, err := s.submitter.Retry(c.Request.Context(), proofHash)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusAccepted, toAnchorResponse(anchor))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be an integer")
	}
	return v, nil
}

func toCredentialResponse(cred domain.Credential) credentialResponse {
	return credentialResponse{
		ProofHash:     cred.ProofHash,
		FileName:      cred.FileName,
		MimeType:      cred.MimeType,
		SizeBytes:     cred.SizeBytes,
		Kind:          string(cred.Kind),
		Status:        cred.Status,
		StorageHandle: cred.StorageHandle,
		ErrorCode:     cred.ErrorCode,
		CreatedAt:     formatTime(cred.CreatedAt),
		UpdatedAt:     formatTime(cred.UpdatedAt),
	}
}

func toAnchorResponse(a domain.Anchor) anchorResponse {
	out := anchorResponse{
		ID:           a.ID,
		Kind:         a.Kind,
		Status:       a.Status,
		Reference:    a.Reference,
		TxID:         a.TxID,
		BlockHeight:  a.BlockHeight,
		ErrorCode:    a.ErrorCode,
		PollAttempts: a.PollAttempts,
		CreatedAt:    formatTime(a.CreatedAt),
		UpdatedAt:    formatTime(a.UpdatedAt),
	}
	if a.BlockTime != nil {
		out.BlockTime = formatTime(*a.BlockTime)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
