package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"warroom/internal/engine"
	"warroom/internal/engine/access"
	"warroom/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig

	// Background starts the deadline sweeper and webhook dispatcher
	// alongside the handler. Left off in tests.
	Background bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"not allowed to submit a report without team leadership"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"section\":\"battle3_funding\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Warroom API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Warroom API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerArenas(group, cfg.Engine)
	registerStatus(group, cfg.Engine)
	registerMissions(group, cfg.Engine)
	registerTeams(group, cfg.Engine)
	registerDrafts(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerAdjudication(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	if cfg.Background {
		arenaID := ""
		if cfg.Engine.Config != nil {
			arenaID = cfg.Engine.Config.Arena.ID
		}
		startDeadlineSweeper(cfg.Engine, arenaID)
		startWebhookDispatcher(cfg.Engine)
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe access.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": fe.Action})
	}
	var fse access.ForbiddenSectionError
	if errors.As(err, &fse) {
		return newAPIError(http.StatusForbidden, "forbidden_section", err.Error(), map[string]any{"section": fse.Section})
	}
	var te engine.TimingError
	if errors.As(err, &te) {
		return newAPIError(http.StatusUnprocessableEntity, "timing_missing", err.Error(), map[string]any{"missing": te.Missing})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrNoResult) {
		return newAPIError(http.StatusNotFound, "no_result", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "adjudicator"):
		return newAPIError(http.StatusBadGateway, "adjudicator_failed", msg, nil)
	case strings.Contains(lowered, "already claimed"),
		strings.Contains(lowered, "already submitted"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "is full"),
		strings.Contains(lowered, "not recruiting"),
		strings.Contains(lowered, "not active"),
		strings.Contains(lowered, "not ready"),
		strings.Contains(lowered, "invalid mission transition"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadGateway:
		return "adjudicator_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Warroom API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerArenas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-arena",
		Method:        http.MethodPost,
		Path:          "/arenas",
		Summary:       "Create arena",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateArenaRequest `json:"body"`
	}) (*struct {
		Body ArenaResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.InitArena(ctx, input.Body.ID, stringOrEmpty(input.Body.Description), playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArenaResponse `json:"body"`
		}{Body: arenaResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-arenas",
		Method:      http.MethodGet,
		Path:        "/arenas",
		Summary:     "List arenas",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ArenaResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListArenas(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ArenaResponse `json:"body"`
		}{Body: mapArenas(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-arena",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}",
		Summary:     "Get arena",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID string `path:"arena_id"`
	}) (*struct {
		Body ArenaResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetArena(ctx, input.ArenaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArenaResponse `json:"body"`
		}{Body: arenaResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-arena-config",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/config",
		Summary:     "Get arena config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID string `path:"arena_id"`
	}) (*struct {
		Body ArenaConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetArenaConfig(ctx, input.ArenaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArenaConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "arena-status",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/status",
		Summary:     "Arena status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID string `path:"arena_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		a, err := e.Repo.GetArena(ctx, input.ArenaID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountMissionsByStatus(ctx, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"arena_id":       a.ID,
			"status":         a.Status,
			"mission_counts": counts,
		}}, nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/arenas/{arena_id}/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID string               `path:"arena_id"`
		Body    CreateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if input.Body.Subject == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "subject is required", nil)
		}
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.MissionCreateOptions{
			ArenaID:          input.ArenaID,
			Title:            input.Body.Title,
			Subject:          input.Body.Subject,
			CapacityPerTeam:  intOrZero(input.Body.CapacityPerTeam),
			TimeLimitMinutes: intOrZero(input.Body.TimeLimitMinutes),
			StartAt:          stringOrEmpty(input.Body.StartAt),
			ActorID:          playerID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		m, err := e.CreateMission(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/missions",
		Summary:     "List missions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ArenaID string `path:"arena_id"`
		Status  string `query:"status" enum:"draft,scheduled,recruiting,active,evaluation,completed"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedMissions `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListMissions(ctx, repo.MissionFilters{
			ArenaID:         input.ArenaID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedMissions{Items: []MissionResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = mapMissions(items)
		return &struct {
			Body paginatedMissions `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/missions/{mission_id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.GetMission(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		if !arenaMatches(input.ArenaID, m.ArenaID) {
			return nil, handleError(repo.ErrNotFound)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-mission",
		Method:      http.MethodPost,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/open",
		Summary:     "Open recruiting",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.OpenRecruiting(ctx, input.MissionID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-mission",
		Method:      http.MethodPost,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/start",
		Summary:     "Start mission clock",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.StartMission(ctx, input.MissionID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/teams",
		Summary:     "List mission teams",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body []TeamResponse `json:"body"`
	}, error) {
		if _, err := e.GetMission(ctx, input.MissionID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTeams(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TeamResponse `json:"body"`
		}{Body: mapTeams(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-mission",
		Method:      http.MethodPost,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/join",
		Summary:     "Join a mission team",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string             `path:"arena_id"`
		MissionID string             `path:"mission_id"`
		Body      JoinMissionRequest `json:"body"`
	}) (*struct {
		Body JoinMissionResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		member, team, err := e.JoinMission(ctx, input.MissionID, playerID, stringOrEmpty(input.Body.Team))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JoinMissionResponse `json:"body"`
		}{Body: JoinMissionResponse{Team: team, Member: memberResponse(member)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-leadership",
		Method:      http.MethodPost,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/leader",
		Summary:     "Claim team leadership",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body TeamResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		team, err := e.ClaimLeadership(ctx, input.MissionID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TeamResponse `json:"body"`
		}{Body: teamResponse(team)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-role",
		Method:      http.MethodPost,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/roles",
		Summary:     "Assign a battle role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string            `path:"arena_id"`
		MissionID string            `path:"mission_id"`
		Body      AssignRoleRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.PlayerID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "player_id is required", nil)
		}
		leaderID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		member, err := e.AssignRole(ctx, input.MissionID, leaderID, input.Body.PlayerID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(member)}, nil
	})
}

func registerDrafts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-draft-section",
		Method:      http.MethodPut,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/draft",
		Summary:     "Update a dossier draft section",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string             `path:"arena_id"`
		MissionID string             `path:"mission_id"`
		Body      UpdateDraftRequest `json:"body"`
	}) (*struct {
		Body DraftResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		draft, err := e.UpdateDraftSection(ctx, input.MissionID, playerID, input.Body.Section, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DraftResponse `json:"body"`
		}{Body: draftResponse(draft)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/draft",
		Summary:     "Get the caller's team draft",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body DraftResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		_, teamName, ok, err := e.Access.TeamOf(ctx, tx, input.MissionID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, handleError(access.ForbiddenError{Action: "read a draft for a mission you are not on"})
		}
		draft, err := e.Repo.GetDraft(ctx, input.MissionID, teamName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DraftResponse `json:"body"`
		}{Body: draftResponse(draft)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-report",
		Method:      http.MethodPost,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/report",
		Summary:     "Submit the team dossier",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string              `path:"arena_id"`
		MissionID string              `path:"mission_id"`
		Body      SubmitReportRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.SubmitReport(ctx, input.MissionID, playerID, input.Body.Dossier)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(rep)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/reports",
		Summary:     "List submitted reports",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body []ReportResponse `json:"body"`
	}, error) {
		if _, err := e.GetMission(ctx, input.MissionID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListReports(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ReportResponse, 0, len(items))
		for _, r := range items {
			res = append(res, reportResponse(r))
		}
		return &struct {
			Body []ReportResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerAdjudication(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "finalize-mission",
		Method:      http.MethodPost,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/finalize",
		Summary:     "Adjudicate and complete the mission",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body engine.MissionResult `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		result, err := e.FinalizeMission(ctx, input.MissionID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MissionResult `json:"body"`
		}{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-result",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/missions/{mission_id}/result",
		Summary:     "Get the stored mission verdict",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID   string `path:"arena_id"`
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body engine.MissionResult `json:"body"`
	}, error) {
		result, err := e.Result(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MissionResult `json:"body"`
		}{Body: result}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stats",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/stats",
		Summary:     "Arena leaderboard",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID string `path:"arena_id"`
	}) (*struct {
		Body []PlayerStatsResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetArena(ctx, input.ArenaID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListPlayerStats(ctx, input.ArenaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PlayerStatsResponse `json:"body"`
		}{Body: mapStats(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-player-stats",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/stats/{player_id}",
		Summary:     "Player stats",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArenaID  string `path:"arena_id"`
		PlayerID string `path:"player_id"`
	}) (*struct {
		Body PlayerStatsResponse `json:"body"`
	}, error) {
		s, err := e.Repo.GetPlayerStats(ctx, input.ArenaID, input.PlayerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlayerStatsResponse `json:"body"`
		}{Body: statsResponse(s)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/arenas/{arena_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ArenaID    string `path:"arena_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"arena,mission,team"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.ArenaID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			PlayerID: principal.PlayerID,
			Source:   principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		player := strings.TrimSpace(input.Body.PlayerID)
		if player == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "player_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, player)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

func arenaMatches(expected, actual string) bool {
	if expected == "" {
		return true
	}
	return expected == actual
}
