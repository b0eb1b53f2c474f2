package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kithlabs/kith/internal/category"
	"github.com/kithlabs/kith/internal/config"
	"github.com/kithlabs/kith/internal/llm"
	"github.com/kithlabs/kith/internal/reconcile"
	"github.com/kithlabs/kith/internal/store"
	"github.com/kithlabs/kith/internal/synthesis"
)

// defaultUserID is the owner scope for the single-user import endpoint.
const defaultUserID = 1

type Server struct {
	Store  store.Store
	Engine *reconcile.Engine
	Synth  *synthesis.Synthesizer
	Log    *zap.Logger
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if _, err := st.EnsureUser(context.Background(), "default"); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to seed default user: %w", err)
	}

	// The synthesis endpoint is optional; without an LLM provider the
	// rest of the service still works.
	var synth *synthesis.Synthesizer
	if cfg.LLM.Provider != "" {
		client, err := llm.NewClient(context.Background(), cfg.LLM)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		synth = synthesis.NewSynthesizer(client, logger)
	}

	return &Server{
		Store:  st,
		Engine: reconcile.NewEngine(st, logger),
		Synth:  synth,
		Log:    logger,
	}, nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", s.Health)
	r.GET("/api/categories", s.Categories)

	r.POST("/api/import/merge-from-csv", s.ImportOwnCSV)
	r.POST("/api/contacts/:id/notes", s.ProcessNote)

	r.POST("/admin/api/users/:id/import/csv", s.ImportUserCSV)
	r.POST("/admin/api/import/all-users-csv", s.ImportAllUsersCSV)
	r.GET("/admin/api/users/:id/export/csv", s.ExportUserCSV)

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Categories exposes the canonical category tokens in their fixed order.
func (s *Server) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": category.Order})
}

func (s *Server) ImportOwnCSV(c *gin.Context) {
	user, err := s.Store.UserByID(c.Request.Context(), defaultUserID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Default user not available"})
		return
	}
	s.runImport(c, "csv_merge", []store.User{*user})
}

func (s *Server) ImportUserCSV(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	user, err := s.Store.UserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	s.runImport(c, fmt.Sprintf("csv_merge_user_%d", id), []store.User{*user})
}

func (s *Server) ImportAllUsersCSV(c *gin.Context) {
	users, err := s.Store.Users(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}
	s.runImport(c, "csv_all_users", users)
}

// runImport is the shared upload path: validate the file, fingerprint it,
// decode it, and hand it to the engine for the given scopes.
func (s *Server) runImport(c *gin.Context, kind string, scopes []store.User) {
	file, err := c.FormFile("backup_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No backup file provided"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Please upload a .csv file."})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	opts := reconcile.Options{
		DryRun: strings.EqualFold(c.PostForm("dry_run"), "true"),
		Force:  strings.EqualFold(c.PostForm("force"), "true"),
		Policy: reconcile.Policy{
			ContactTier: c.DefaultPostForm("policy_contact_tier", reconcile.PolicyPreserve),
			Details:     c.DefaultPostForm("policy_details", reconcile.PolicyPreserve),
		},
		FileName: file.Filename,
		FileHash: reconcile.Fingerprint(raw),
	}

	result, err := s.Engine.Run(c.Request.Context(), kind, reconcile.DecodeUpload(raw), scopes, opts)
	if err != nil {
		s.Log.Error("import failed", zap.String("kind", kind), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Import failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ExportUserCSV(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	user, err := s.Store.UserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="kith_export_%s.csv"`, user.Username))
	if err := reconcile.ExportCSV(c.Request.Context(), s.Store, id, c.Writer); err != nil {
		s.Log.Error("export failed", zap.Int64("user_id", id), zap.Error(err))
	}
}

type ProcessNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

func (s *Server) ProcessNote(c *gin.Context) {
	if s.Synth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No LLM provider configured"})
		return
	}
	contactID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid contact id"})
		return
	}

	var req ProcessNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	contacts, err := s.Store.ContactsByUser(c.Request.Context(), defaultUserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up contact"})
		return
	}
	var contact *store.Contact
	for i := range contacts {
		if contacts[i].ID == contactID {
			contact = &contacts[i]
			break
		}
	}
	if contact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}

	proposal, added, err := s.Synth.ProcessNote(c.Request.Context(), s.Store, defaultUserID, contactID, contact.FullName, req.Note)
	if err != nil {
		s.Log.Error("note synthesis failed", zap.Int64("contact_id", contactID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process note"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "success",
		"details_added": added,
		"proposal":      proposal,
	})
}
