package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/audit"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/config"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/db"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/engine"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/logging"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/metrics"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/migrate"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/repo"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/server"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/signature"
)

var rootCmd = &cobra.Command{
	Use:   "aft",
	Short: "Assured file transfer request lifecycle",
	Long: `aft tracks assured file transfer requests through their approval,
transfer, and disposition lifecycle. Every status change is authorized by
role, signed where the step demands it, and recorded in an append-only
audit trail.`,
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
	viper.SetEnvPrefix("AFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting actor identifier")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SeedActors(ctx); err != nil {
					return err
				}
				fmt.Println("workspace ready")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "local", "organization id")
	return cmd
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{
		Use:   "request",
		Short: "Manage transfer requests",
		Long: `Requests move draft -> submitted -> approvals -> transfer -> disposition.
Which approval stages apply depends on classification and transfer direction,
decided once at submission.`,
	}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestActionCmd())
	req.AddCommand(requestActionsCmd())
	req.AddCommand(requestSignaturesCmd())
	req.AddCommand(requestArchiveCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var opts engine.RequestCreateOptions
	var dual bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft request",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("dual-signature") {
				opts.EnableDualSignature = &dual
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.CreateRequest(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Classification, "classification", "", "classification level")
	cmd.Flags().StringVar(&opts.TransferType, "transfer-type", "", "transfer direction")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().BoolVar(&dual, "dual-signature", false, "require two signatures on transfer completion")
	cmd.Flags().StringVar(&opts.SecondarySignerType, "secondary-signer-type", "", "secondary signer type (dta, sme)")
	cmd.Flags().StringVar(&opts.SecondarySignerID, "secondary-signer-id", "", "secondary signer id")
	_ = cmd.MarkFlagRequired("classification")
	_ = cmd.MarkFlagRequired("transfer-type")
	return cmd
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Number", "Status", "Class", "Type", "Requestor", "Version"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.RequestNumber, r.Status, r.Classification, r.TransferType, r.RequestorID, r.Version})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.RequestorID, "requestor", "", "requestor filter")
	cmd.Flags().StringVar(&f.TransferType, "transfer-type", "", "transfer type filter")
	cmd.Flags().BoolVar(&f.IncludeArchived, "include-archived", false, "include archived requests")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id-or-number>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func requestActionCmd() *cobra.Command {
	var in engine.ActionInput
	var dataJSON string
	var sig, second signatureFlags
	cmd := &cobra.Command{
		Use:   "action <action> <id-or-number>",
		Short: "Perform a lifecycle action",
		Long: `Performs one lifecycle action (submit, advance-dao, dao-approve,
approver-approve, cpso-approve, reject, return-to-draft, initiate-transfer,
sme-sign, complete-transfer, disposition-complete, disposition-dispose,
cancel) as the acting actor.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := domain.ParseAction(args[0])
			if err != nil {
				return err
			}
			in.Action = action
			in.ActorID = viper.GetString("actor-id")
			if dataJSON != "" {
				if err := json.Unmarshal([]byte(dataJSON), &in.Data); err != nil {
					return fmt.Errorf("invalid --data-json: %w", err)
				}
			}
			in.Signature = sig.toInput()
			in.SecondSignature = second.toInput()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[1])
				if err != nil {
					return err
				}
				in.RequestID = req.ID
				res, err := e.PerformAction(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&in.Reason, "reason", "", "reason (required for reject)")
	cmd.Flags().BoolVar(&in.Acknowledged, "ack", false, "acknowledge transfer procedures (required for submit)")
	cmd.Flags().StringVar(&in.DispositionMethod, "disposition-method", "", "disposition method")
	cmd.Flags().StringVar(&dataJSON, "data-json", "", "stage data JSON")
	cmd.Flags().Int64Var(&in.ExpectedVersion, "expected-version", 0, "optimistic concurrency guard")
	sig.register(cmd, "")
	second.register(cmd, "second-")
	return cmd
}

type signatureFlags struct {
	SignerID   string
	Material   string
	Thumbprint string
}

func (s *signatureFlags) register(cmd *cobra.Command, prefix string) {
	cmd.Flags().StringVar(&s.SignerID, prefix+"signer-id", "", "signer id")
	cmd.Flags().StringVar(&s.Material, prefix+"signature", "", "signature material")
	cmd.Flags().StringVar(&s.Thumbprint, prefix+"thumbprint", "", "certificate thumbprint")
}

func (s signatureFlags) toInput() *signature.Input {
	if s.SignerID == "" && s.Material == "" && s.Thumbprint == "" {
		return nil
	}
	return &signature.Input{
		SignerID:              s.SignerID,
		SignatureMaterial:     s.Material,
		CertificateThumbprint: s.Thumbprint,
	}
}

func requestActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions <id-or-number>",
		Short: "Show actions the acting actor may attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				actions, err := e.PermittedActions(ctx, req.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(actions)
			})
		},
	}
	return cmd
}

func requestSignaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signatures <id-or-number>",
		Short: "List recorded signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				sigs, err := e.ListSignatures(ctx, req.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(sigs)
			})
		},
	}
	return cmd
}

func requestArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id-or-number>",
		Short: "Archive a terminal request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				return e.Archive(ctx, req.ID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Request counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountRequestsByStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				for _, s := range domain.Statuses {
					if c, ok := counts[string(s)]; ok {
						tw.AppendRow(table.Row{s, c})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail",
	}
	a.AddCommand(auditTailCmd())
	return a
}

func auditTailCmd() *cobra.Command {
	var f audit.Filters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.ListAudit(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Request", "Actor", "Action", "From", "To", "Outcome", "Reason"})
				for _, en := range entries {
					tw.AppendRow(table.Row{en.TS, en.RequestID, en.ActorID, en.Action, en.FromStatus, en.ToStatus, en.Outcome, en.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.RequestID, "request", "", "request id filter")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	cmd.Flags().StringVar(&f.Action, "action", "", "action filter")
	cmd.Flags().StringVar(&f.Outcome, "outcome", "", "outcome filter")
	cmd.Flags().StringVar(&f.Since, "since", "", "RFC3339 lower bound")
	cmd.Flags().StringVar(&f.Until, "until", "", "RFC3339 upper bound")
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of entries")
	return cmd
}

func actorCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "actor",
		Short: "Manage actors",
	}
	a.AddCommand(actorAddCmd())
	a.AddCommand(actorListCmd())
	a.AddCommand(actorGrantCmd())
	a.AddCommand(actorRevokeCmd())
	a.AddCommand(actorDeactivateCmd())
	return a
}

func actorAddCmd() *cobra.Command {
	var id, primary string
	var roles []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			primaryRole, err := domain.ParseRole(primary)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				if err := r.EnsureActor(ctx, nil, id, primaryRole, now); err != nil {
					return err
				}
				for _, roleStr := range roles {
					role, err := domain.ParseRole(roleStr)
					if err != nil {
						return err
					}
					if err := r.AssignRole(ctx, nil, id, role); err != nil {
						return err
					}
				}
				actor, err := r.GetActor(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(actor)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id")
	cmd.Flags().StringVar(&primary, "role", "", "primary role")
	cmd.Flags().StringArrayVar(&roles, "extra-role", []string{}, "additional role (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actors, err := r.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Primary role", "Roles", "Active"})
				for _, a := range actors {
					extra := make([]string, len(a.Roles))
					for i, r := range a.Roles {
						extra[i] = string(r)
					}
					tw.AppendRow(table.Row{a.ID, a.PrimaryRole, strings.Join(extra, ","), a.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func actorGrantCmd() *cobra.Command {
	var target, roleStr string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := domain.ParseRole(roleStr)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetActor(ctx, target); err != nil {
					return err
				}
				return r.AssignRole(ctx, nil, target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&roleStr, "role", "", "role id")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorRevokeCmd() *cobra.Command {
	var target, roleStr string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := domain.ParseRole(roleStr)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.RevokeRole(ctx, nil, target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&roleStr, "role", "", "role id")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetActorActive(ctx, args[0], false)
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	a.AddCommand(apikeyIssueCmd())
	a.AddCommand(apikeyRevokeCmd())
	return a
}

func apikeyIssueCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetActor(ctx, actorID); err != nil {
					return err
				}
				plaintext := uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(plaintext),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "actor_id": actorID, "key": plaintext})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
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

func tokenCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("AFT_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("AFT_JWT_SECRET is required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actor, err := r.GetActor(ctx, actorID)
				if err != nil {
					return err
				}
				roles := make([]string, 0, len(actor.Roles)+1)
				for _, role := range actor.AllRoles() {
					roles = append(roles, string(role))
				}
				token, err := server.IssueToken(secret, actor.ID, roles)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(logging.Config{Level: viper.GetString("log-level"), Format: "json"})
			secret := os.Getenv("AFT_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("AFT_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SeedActors(ctx); err != nil {
					return err
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()

				refreshGauges := func() {
					if err := metrics.UpdateRequestsByStatus(ctx, e.Repo); err != nil {
						logging.Warn().Err(err).Msg("requests-by-status gauge refresh failed")
					}
				}
				refreshGauges()
				go func() {
					ticker := time.NewTicker(30 * time.Second)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							refreshGauges()
						}
					}
				}()
				logging.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving AFT API")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

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
	cfg, err := config.LoadOptional(workspace)
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
	return fn(ctx, repo.Repo{DB: conn})
}

func resolveRequest(ctx context.Context, e engine.Engine, ref string) (domain.AFTRequest, error) {
	req, err := e.GetRequest(ctx, ref)
	if err == nil {
		return req, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return e.GetRequestByNumber(ctx, ref)
	}
	return req, err
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
