package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"folio/internal/config"
	"folio/internal/domain/models/revision"
	"folio/internal/domain/models/timeline"
	docsysSvc "folio/internal/domain/services/docsystem"
	revisionSvc "folio/internal/domain/services/revision"
	timelineSvc "folio/internal/domain/services/timeline"
	"folio/internal/repository/postgres"
	authService "folio/internal/service/auth"
	serviceDocsys "folio/internal/service/docsystem"
	fanoutSvc "folio/internal/service/fanout"
	serviceRevision "folio/internal/service/revision"
	serviceTimeline "folio/internal/service/timeline"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed documents")
	clearData := flag.Bool("clear-data", false, "Delete the dev user's documents (keep schema)")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Storage != "postgres" {
		log.Fatalf("Seeding needs STORAGE=postgres, got %q", cfg.Storage)
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("🚫 BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	switch {
	case *clearData:
		log.Printf("🧹 Clearing data only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	case *schemaOnly:
		log.Printf("🏗️  Setting up schema only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	default:
		log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := postgres.Migrate(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("✅ Schema ready")

	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	log.Println("⚠️  Clearing existing documents for the dev user...")
	if err := clearUserData(ctx, pool, tables, cfg.DevUserID); err != nil {
		log.Fatalf("Failed to clear data: %v", err)
	}
	if *clearData {
		log.Println("✅ Data cleared successfully")
		return
	}

	s := newSeeder(pool, tables, cfg, logger)
	defer s.hub.Close()

	for i, doc := range seedDocuments {
		id, err := s.seed(ctx, cfg.DevUserID, doc)
		if err != nil {
			log.Printf("❌ Failed to seed document '%s': %v", doc.title, err)
			continue
		}
		log.Printf("✅ Seeded document %d/%d: %s (ID: %s)", i+1, len(seedDocuments), doc.title, id)
	}

	log.Println("🎉 Seeding complete!")
}

// seeder drives the real services so seeded rows carry the same events,
// addresses and message states as ones created through the API
type seeder struct {
	documents docsysSvc.DocumentService
	timeline  *serviceTimeline.Service
	flagged   timelineSvc.FlaggedVersionService
	messages  *serviceRevision.Service
	runner    *serviceRevision.StreamRunner
	hub       *fanoutSvc.Hub
}

func newSeeder(pool *pgxpool.Pool, tables *postgres.TableNames, cfg *config.Config, logger *slog.Logger) *seeder {
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	docs := postgres.NewDocumentRepository(repoConfig)
	contents := postgres.NewContentAddressRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)
	authorizer := authService.NewDocumentAccessAuthorizer(docs)
	stripes := fanoutSvc.NewStripes(4)

	// Nothing subscribes; services still need somewhere to publish
	hub := fanoutSvc.NewHub(fanoutSvc.Config{Shards: 1, BufferSize: 1}, logger)

	timelineCfg := serviceTimeline.Config{
		EventRepo:   postgres.NewEventRepository(repoConfig),
		FlaggedRepo: postgres.NewFlaggedVersionRepository(repoConfig),
		MessageRepo: postgres.NewMessageRepository(repoConfig),
		Authorizer:  authorizer,
		TxManager:   txManager,
		Publisher:   hub,
		Stripes:     stripes,
		Logger:      logger,
	}
	timelineService := serviceTimeline.NewService(timelineCfg)

	documentService := serviceDocsys.NewDocumentService(serviceDocsys.DocumentServiceConfig{
		DocRepo:     docs,
		ContentRepo: contents,
		Authorizer:  authorizer,
		TxManager:   txManager,
		Recorder:    timelineService,
		Publisher:   hub,
		Stripes:     stripes,
		Logger:      logger,
	})

	// Seeded edits carry their proposal, so the lorem provider is never asked
	provider, err := serviceRevision.NewProvider("lorem", "")
	if err != nil {
		log.Fatalf("Failed to create revision provider: %v", err)
	}
	reviser := serviceRevision.NewDirectReviser(serviceRevision.NewLLMReviser(provider, cfg.RevisionModel))
	runner := serviceRevision.NewStreamRunner(mstream.NewRegistry(), contents, reviser, cfg.Engine.Revision.Timeout, logger)

	messageService := serviceRevision.NewService(serviceRevision.Config{
		MessageRepo: timelineCfg.MessageRepo,
		ThreadRepo:  postgres.NewThreadRepository(repoConfig),
		DocRepo:     docs,
		ContentRepo: contents,
		Authorizer:  authorizer,
		TxManager:   txManager,
		Recorder:    timelineService,
		Timeline:    timelineService,
		Publisher:   hub,
		Runner:      runner,
		Stripes:     stripes,
		Logger:      logger,
	})
	runner.Attach(messageService)

	return &seeder{
		documents: documentService,
		timeline:  timelineService,
		flagged:   serviceTimeline.NewFlaggedVersionService(timelineCfg),
		messages:  messageService,
		runner:    runner,
		hub:       hub,
	}
}

// seedDocument describes one document and the history built on top of it
type seedDocument struct {
	title    string
	public   bool
	content  string
	marker   string
	comment  string
	edit     *seedEdit
	thread   string
	branchAs string
}

// seedEdit is a human edit proposal that gets accepted and flagged
type seedEdit struct {
	request  string
	proposed string
	flagAs   string
}

var seedDocuments = []seedDocument{
	{
		title:   "Chapter 1: The Lighthouse",
		content: "The keeper climbed the stairs at dusk.\nThe lamp had been dark for three nights.",
		marker:  "First draft",
		comment: "Opening line feels slow. Can we start with the dark lamp?",
		edit: &seedEdit{
			request:  "Lead with the dark lamp",
			proposed: "For three nights the lamp had been dark.\nThe keeper climbed the stairs at dusk.",
			flagAs:   "Submitted to editor",
		},
		thread:   "Ideas for the storm scene",
		branchAs: "Chapter 1 (alternate ending)",
	},
	{
		title:   "World notes",
		public:  true,
		content: "Harbor town of Brell. Population 400. Ferry runs twice a week.",
		comment: "Should the ferry schedule change in winter?",
	},
	{
		title:   "Untitled scratchpad",
		content: "",
		marker:  "Started",
	},
}

func (s *seeder) seed(ctx context.Context, userID string, d seedDocument) (string, error) {
	req := &docsysSvc.CreateDocumentRequest{
		UserID:   userID,
		Title:    d.title,
		IsPublic: d.public,
	}
	if d.content != "" {
		req.InitialPayload = &d.content
	}
	doc, err := s.documents.CreateDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	if d.marker != "" {
		if _, err := s.timeline.AppendMarker(ctx, userID, doc.ID, d.marker); err != nil {
			return doc.ID, fmt.Errorf("marker: %w", err)
		}
	}

	if d.comment != "" {
		msg, err := s.messages.CreateMessage(ctx, &revisionSvc.CreateMessageRequest{
			UserID:     userID,
			DocumentID: doc.ID,
			Content:    d.comment,
		})
		if err != nil {
			return doc.ID, fmt.Errorf("comment: %w", err)
		}
		if msg.TimelineEventID != nil {
			if _, err := s.timeline.ResolveMessage(ctx, userID, *msg.TimelineEventID, true, "Addressed in the next draft"); err != nil {
				return doc.ID, fmt.Errorf("resolve comment: %w", err)
			}
		}
	}

	if d.edit != nil {
		if err := s.acceptEdit(ctx, userID, doc.ID, d.edit); err != nil {
			return doc.ID, err
		}
	}

	if d.thread != "" {
		thread, err := s.messages.CreateThread(ctx, &revisionSvc.CreateThreadRequest{
			UserID:     userID,
			DocumentID: doc.ID,
			Title:      d.thread,
		})
		if err != nil {
			return doc.ID, fmt.Errorf("thread: %w", err)
		}
		if _, err := s.messages.CreateMessage(ctx, &revisionSvc.CreateMessageRequest{
			UserID:   userID,
			ThreadID: &thread.ID,
			Content:  "What if the storm arrives a day early?",
		}); err != nil {
			return doc.ID, fmt.Errorf("thread message: %w", err)
		}
	}

	if d.branchAs != "" {
		current, err := s.documents.GetDocument(ctx, userID, doc.ID)
		if err != nil {
			return doc.ID, err
		}
		if current.HeadAddress != nil {
			if _, err := s.documents.BranchDocument(ctx, &docsysSvc.BranchDocumentRequest{
				UserID:           userID,
				SourceDocumentID: doc.ID,
				AddressID:        *current.HeadAddress,
				Title:            d.branchAs,
			}); err != nil {
				return doc.ID, fmt.Errorf("branch: %w", err)
			}
		}
	}

	return doc.ID, nil
}

// acceptEdit proposes a human edit, waits for the runner to store it, accepts
// it and flags the resulting Update event
func (s *seeder) acceptEdit(ctx context.Context, userID, documentID string, e *seedEdit) error {
	msg, err := s.messages.CreateMessage(ctx, &revisionSvc.CreateMessageRequest{
		UserID:     userID,
		DocumentID: documentID,
		Content:    e.request,
		Attachments: revision.Attachments{
			revision.RevisionAttachment{Instructions: e.request, ProposedPayload: []byte(e.proposed)},
		},
	})
	if err != nil {
		return fmt.Errorf("edit proposal: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.runner.Wait(waitCtx); err != nil {
		return fmt.Errorf("wait for revision: %w", err)
	}

	msg, err = s.messages.GetMessage(ctx, userID, msg.ID)
	if err != nil {
		return err
	}
	if msg.LifecycleStage != revision.StageRevised || msg.Metadata.ContentAddress == nil {
		return fmt.Errorf("edit proposal ended %s instead of %s", msg.LifecycleStage, revision.StageRevised)
	}
	if _, err := s.messages.UpdateRevisionStatus(ctx, userID, msg.ID, revision.StatusAccepted, *msg.Metadata.ContentAddress); err != nil {
		return fmt.Errorf("accept edit: %w", err)
	}

	if e.flagAs == "" {
		return nil
	}
	edits, err := s.timeline.List(ctx, userID, documentID, timeline.FilterEdits)
	if err != nil {
		return err
	}
	for i := len(edits) - 1; i >= 0; i-- {
		if edits[i].Kind() == timeline.KindUpdate {
			_, err := s.flagged.Create(ctx, userID, e.flagAs, edits[i].ID)
			return err
		}
	}
	return nil
}

// dropAllTables drops all tables in reverse dependency order
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	tableNames := []string{
		tables.Messages,
		tables.Threads,
		tables.FlaggedVersions,
		tables.TimelineEvents,
		tables.ContentAddresses,
		tables.Documents,
	}

	for _, table := range tableNames {
		dropSQL := "DROP TABLE IF EXISTS " + table + " CASCADE"
		if _, err := pool.Exec(ctx, dropSQL); err != nil {
			return err
		}
		log.Printf("  ✓ Dropped %s", table)
	}

	return nil
}

// clearUserData deletes every document the user owns; dependent rows cascade
func clearUserData(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, userID string) error {
	_, err := pool.Exec(ctx, "DELETE FROM "+tables.Documents+" WHERE owned_by = $1", userID)
	return err
}
