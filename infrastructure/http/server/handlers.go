package server

import (
	"duo-chat/auth"
	"duo-chat/domain"
	"duo-chat/domain/mimetypes"
	"duo-chat/errors"
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
)

type sendTextRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sender, _ := auth.IdentityFrom(r.Context())

	var body sendTextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&body); err != nil {
		s.writeError(w, r, errors.Wrap(errors.KindValidation, "invalid request body", err))
		return
	}

	message, err := s.service.SendText(r.Context(), domain.SendTextCommand{
		SenderID:   sender,
		ReceiverID: domain.Identity(ps.ByName("receiverId")),
		Text:       body.Message,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, http.StatusCreated, message)
}

// handleSendFile streams the "file" part of the multipart body straight into
// the ingestion pipeline. Nothing is buffered in memory or in temp files.
func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sender, _ := auth.IdentityFrom(r.Context())
	limit := s.files.MaxSize() + multipartOverhead

	if r.ContentLength > limit {
		s.writeError(w, r, errors.ErrFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.KindValidation, errors.ErrNoFileUploaded.Message, err))
		return
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.writeError(w, r, errors.Wrap(errors.KindValidation, "malformed multipart body", err))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_, _ = io.Copy(io.Discard, part)
			continue
		}

		message, err := s.service.SendFile(r.Context(), domain.SendFileCommand{
			SenderID:   sender,
			ReceiverID: domain.Identity(ps.ByName("receiverId")),
			Upload: domain.Upload{
				Reader:       part,
				DeclaredType: part.Header.Get("Content-Type"),
				DeclaredName: part.FileName(),
				Size:         -1,
			},
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeData(w, http.StatusCreated, message)
		return
	}
	s.writeError(w, r, errors.ErrNoFileUploaded)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requester, _ := auth.IdentityFrom(r.Context())

	history, err := s.service.GetConversation(r.Context(), domain.GetConversationCommand{
		RequesterID: requester,
		OtherID:     domain.Identity(ps.ByName("otherParticipantId")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if history == nil {
		s.writeData(w, http.StatusOK, nil)
		return
	}
	s.writeData(w, http.StatusOK, history)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requester, _ := auth.IdentityFrom(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, errors.Wrap(errors.KindValidation, "limit must be a number", err))
			return
		}
		limit = parsed
	}

	messages, err := s.service.Search(r.Context(), domain.SearchCommand{
		RequesterID: requester,
		OtherID:     domain.Identity(ps.ByName("otherParticipantId")),
		Terms:       r.URL.Query().Get("q"),
		Limit:       limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, messages)
}

func (s *Server) handleOnlineUsers(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	users := s.service.OnlineUsers()
	if users == nil {
		users = []domain.Identity{}
	}
	s.writeData(w, http.StatusOK, users)
}

// handleFile serves a stored upload. The content type comes from the
// extension table, never from the client that uploaded it.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("storedName")
	f, info, err := s.files.Open(name)
	if err != nil {
		if !stderrors.Is(err, errors.ErrFileNotFound) {
			s.log.Error("Failed to open stored file", "name", name, "error", err)
		}
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	disposition := "inline"
	if r.URL.Query().Get("download") == "true" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", mimetypes.ContentTypeForName(name).String())
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
