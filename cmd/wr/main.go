package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"warroom/internal/app"
	"warroom/internal/config"
	"warroom/internal/db"
	"warroom/internal/domain"
	"warroom/internal/engine"
	"warroom/internal/migrate"
	"warroom/internal/repo"
	"warroom/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wr",
	Short: "Warroom CLI",
	Long: `Warroom runs competitive company-research missions between two teams.
Core concepts:
- Workspace: your .warroom directory with only the database; configs are stored in the DB and imported explicitly.
- Arena: the venue that owns all missions, players, and the leaderboard.
- Mission: one research showdown about a target company; it moves draft -> scheduled -> recruiting -> active -> evaluation -> completed.
- Teams: every mission has exactly two rosters, alpha and beta; players join while recruiting and the first member to claim it leads.
- Roles: five battle roles (market_commander, arsenal_ranger, capital_quartermaster, customer_analyst, alliance_broker), each owning one dossier section.
- Dossier: the five-section research report a team drafts during the mission and submits before the clock runs out; late teams get their draft force-submitted as-is.
- Adjudication: an external judge scores accuracy, sources, and presentation; speed is computed from the clock. Highest total wins, ties are ties.
- Event log: diary of everything that happened, view with 'wr log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WARROOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("player-id", "local-player", "player identifier")
	rootCmd.PersistentFlags().String("arena", "", "arena id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("player-id", rootCmd.PersistentFlags().Lookup("player-id"))
	_ = viper.BindPFlag("arena", rootCmd.PersistentFlags().Lookup("arena"))
}

func registerCommands() {
	rootCmd.AddCommand(arenaCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(serveCmd())
}

func arenaCmd() *cobra.Command {
	arena := &cobra.Command{Use: "arena", Short: "Manage arenas"}
	arena.AddCommand(arenaListCmd())
	arena.AddCommand(arenaCreateCmd())
	arena.AddCommand(arenaShowCmd())
	arena.AddCommand(arenaUseCmd())
	arena.AddCommand(arenaDeleteCmd())
	arena.AddCommand(arenaConfigCmd())
	return arena
}

func arenaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List arenas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListArenas(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func arenaCreateCmd() *cobra.Command {
	var id, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create arena",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			a, err := e.InitArena(cmd.Context(), id, desc, viper.GetString("player-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(a)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "arena id")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func arenaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an arena",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetArena(ctx, e.Config.Arena.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func arenaUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current arena for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arenaID := strings.TrimSpace(args[0])
			if arenaID == "" {
				return fmt.Errorf("arena id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "WARROOM_ARENA", arenaID); err != nil {
				return err
			}
			fmt.Printf("Set WARROOM_ARENA=%s in %s/.env\n", arenaID, workspace)
			return nil
		},
	}
	return cmd
}

func arenaDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an arena",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteArena(ctx, e.Config.Arena.ID)
			})
		},
	}
	return cmd
}

func arenaConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage arena config",
	}
	cfg.AddCommand(arenaConfigShowCmd())
	cfg.AddCommand(arenaConfigImportCmd())
	return cfg
}

func arenaConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show arena config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func arenaConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import arena config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			arenaID := cfg.Arena.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if arenaID == "" {
					arenaID = e.Config.Arena.ID
				}
				if err := e.Repo.UpsertArenaConfig(ctx, arenaID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show arena status",
		Long:  "The scoreboard for your arena: mission counts by status and overall arena state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetArena(ctx, e.Config.Arena.ID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountMissionsByStatus(ctx, a.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"arena_id":       a.ID,
					"status":         a.Status,
					"mission_counts": counts,
				})
			})
		},
	}
	return cmd
}

func missionCmd() *cobra.Command {
	mission := &cobra.Command{Use: "mission", Short: "Manage missions"}
	mission.AddCommand(missionCreateCmd())
	mission.AddCommand(missionListCmd())
	mission.AddCommand(missionShowCmd())
	mission.AddCommand(missionOpenCmd())
	mission.AddCommand(missionStartCmd())
	mission.AddCommand(missionJoinCmd())
	mission.AddCommand(missionLeaderCmd())
	mission.AddCommand(missionAssignRoleCmd())
	mission.AddCommand(missionTeamsCmd())
	mission.AddCommand(missionDraftCmd())
	mission.AddCommand(missionSubmitCmd())
	mission.AddCommand(missionFinalizeCmd())
	mission.AddCommand(missionResultCmd())
	return mission
}

func missionCreateCmd() *cobra.Command {
	var title, subject, startAt string
	var capacity, limit int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			if subject == "" {
				return fmt.Errorf("--subject required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, engine.MissionCreateOptions{
					ArenaID:          e.Config.Arena.ID,
					Title:            title,
					Subject:          subject,
					CapacityPerTeam:  capacity,
					TimeLimitMinutes: limit,
					StartAt:          startAt,
					ActorID:          viper.GetString("player-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&subject, "subject", "", "target company")
	cmd.Flags().StringVar(&startAt, "start-at", "", "RFC3339 time when recruiting opens (makes the mission scheduled)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "players per team (default from config)")
	cmd.Flags().IntVar(&limit, "time-limit", 0, "time limit in minutes (default from config)")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				missions, err := e.ListMissions(ctx, repo.MissionFilters{
					ArenaID: e.Config.Arena.ID,
					Status:  status,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Subject", "Status", "Winner"})
				for _, m := range missions {
					winner := ""
					if m.Winner != nil {
						winner = *m.Winner
					}
					tw.AppendRow(table.Row{m.ID, m.Title, m.Subject, m.Status, winner})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <mission-id>",
		Short: "Open a mission for recruiting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.OpenRecruiting(ctx, args[0], viper.GetString("player-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <mission-id>",
		Short: "Start the mission clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.StartMission(ctx, args[0], viper.GetString("player-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionJoinCmd() *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "join <mission-id>",
		Short: "Join a mission team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				member, teamName, err := e.JoinMission(ctx, args[0], viper.GetString("player-id"), team)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"team": teamName, "member": member})
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team preference (alpha or beta)")
	return cmd
}

func missionLeaderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leader <mission-id>",
		Short: "Claim leadership of your team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				team, err := e.ClaimLeadership(ctx, args[0], viper.GetString("player-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(team)
			})
		},
	}
	return cmd
}

func missionAssignRoleCmd() *cobra.Command {
	var player, role string
	cmd := &cobra.Command{
		Use:   "assign-role <mission-id>",
		Short: "Assign a battle role to a teammate (leader only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if player == "" || role == "" {
				return fmt.Errorf("--player and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				member, err := e.AssignRole(ctx, args[0], viper.GetString("player-id"), player, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(member)
			})
		},
	}
	cmd.Flags().StringVar(&player, "player", "", "player id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func missionTeamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teams <mission-id>",
		Short: "Show both rosters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				teams, err := e.Repo.ListTeams(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Team", "Player", "Role", "Leader", "Submitted"})
				for _, t := range teams {
					leader := ""
					if t.LeaderID != nil {
						leader = *t.LeaderID
					}
					submitted := ""
					if t.SubmittedAt != nil {
						submitted = *t.SubmittedAt
					}
					for _, m := range t.Members {
						role := ""
						if m.Role != nil {
							role = *m.Role
						}
						isLeader := ""
						if m.PlayerID == leader {
							isLeader = "yes"
						}
						tw.AppendRow(table.Row{t.Name, m.PlayerID, role, isLeader, submitted})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func missionDraftCmd() *cobra.Command {
	draft := &cobra.Command{Use: "draft", Short: "Work on the team dossier draft"}
	draft.AddCommand(missionDraftSetCmd())
	draft.AddCommand(missionDraftShowCmd())
	return draft
}

func missionDraftSetCmd() *cobra.Command {
	var section, content, filePath string
	cmd := &cobra.Command{
		Use:   "set <mission-id>",
		Short: "Write one dossier section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if section == "" {
				return fmt.Errorf("--section required")
			}
			data := []byte(content)
			if filePath != "" {
				fileData, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				data = fileData
			}
			if len(data) == 0 {
				return fmt.Errorf("--content or --file required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.UpdateDraftSection(ctx, args[0], viper.GetString("player-id"), section, json.RawMessage(data))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "dossier section id")
	cmd.Flags().StringVar(&content, "content", "", "section content as JSON")
	cmd.Flags().StringVar(&filePath, "file", "", "path to JSON file with section content")
	return cmd
}

func missionDraftShowCmd() *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a team draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !domain.ValidTeamName(team) {
				return fmt.Errorf("--team must be alpha or beta")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDraft(ctx, args[0], team)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "alpha", "team name")
	return cmd
}

func missionSubmitCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "submit <mission-id>",
		Short: "Submit your team dossier (leader only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dossier json.RawMessage
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				dossier = json.RawMessage(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.SubmitReport(ctx, args[0], viper.GetString("player-id"), dossier)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "dossier JSON file (defaults to the team draft)")
	return cmd
}

func missionFinalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize <mission-id>",
		Short: "Send both dossiers to the adjudicator and record the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.FinalizeMission(ctx, args[0], viper.GetString("player-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
	return cmd
}

func missionResultCmd() *cobra.Command {
	var wait bool
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "result <mission-id>",
		Short: "Show the stored verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				for {
					result, err := e.Result(ctx, args[0])
					if err == nil {
						return printJSONOrTable(result)
					}
					if !wait || !errors.Is(err, engine.ErrNoResult) {
						return err
					}
					if timeoutSec <= 0 {
						return err
					}
					timeoutSec -= 5
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(5 * time.Second):
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until a verdict is recorded")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 300, "seconds to wait with --wait")
	return cmd
}

func statsCmd() *cobra.Command {
	var player string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Arena leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if player != "" {
					s, err := e.Repo.GetPlayerStats(ctx, e.Config.Arena.ID, player)
					if err != nil {
						return err
					}
					return printJSONOrTable(s)
				}
				items, err := e.Repo.ListPlayerStats(ctx, e.Config.Arena.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Player", "Missions", "Won"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.PlayerID, s.TotalMissions, s.MissionsWon})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&player, "player", "", "show one player")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: mission transitions, joins, role assignments, submissions, and verdicts.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Arena.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				for i := len(events) - 1; i >= 0; i-- {
					evt := events[i]
					fmt.Printf("%s %s %s/%s %s %s\n", evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, evt.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Manage API keys"}
	keys.AddCommand(keysCreateCmd())
	keys.AddCommand(keysListCmd())
	keys.AddCommand(keysRevokeCmd())
	return keys
}

func keysCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the current player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.NewString()
				key := domain.APIKey{
					ID:       uuid.NewString(),
					PlayerID: viper.GetString("player-id"),
					Name:     name,
					KeyHash:  repo.HashAPIKey(raw),
				}
				if err := r.EnsurePlayer(ctx, key.PlayerID, "", time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				// The raw key is shown once and stored only as a hash.
				return printJSONOrTable(map[string]string{"id": key.ID, "key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keysListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("player-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func keysRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveArenaAndConfig(cmd.Context(), workspace, viper.GetString("arena"), viper.GetString("player-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("WARROOM_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("WARROOM_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Background: true})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Warroom API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveArenaAndConfig(ctx, workspace, viper.GetString("arena"), viper.GetString("player-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
