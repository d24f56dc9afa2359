package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/retrieval"
	"github.com/fyrsmithlabs/healthqa/internal/vectorstore"
)

// importBatchSize bounds documents per AddDocuments call.
const importBatchSize = 64

// passageNamespace scopes knowledge-base document ids.
var passageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://healthqa.fyrsmithlabs.dev/passage"))

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
}

var kbImportCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import pre-chunked passages from JSON files",
	Long: `Import reads JSON arrays of passages and upserts them into the index.

Each element carries content, source_name, source_url, title, document_type,
publication_date and topic. Ids are derived from source_url and content, so
re-importing a file does not duplicate passages. Files that fail to parse are
skipped with a warning.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), configPath, args, cmd.OutOrStdout())
	},
}

var kbCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of indexed passages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := initLogger(cfg.Observability, true)
		if err != nil {
			return err
		}
		kb, err := openKnowledgeBase(cmd.Context(), cfg, logger.Underlying())
		if err != nil {
			return err
		}
		defer kb.Close()

		n, err := kb.store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func init() {
	kbCmd.AddCommand(kbImportCmd, kbCountCmd)
}

func runImport(ctx context.Context, path string, files []string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Observability, true)
	if err != nil {
		return err
	}
	zl := logger.Underlying()

	kb, err := openKnowledgeBase(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer kb.Close()

	seen := make(map[string]struct{})
	total := 0
	for _, name := range files {
		passages, err := readPassagesFile(name)
		if err != nil {
			zl.Warn("skipping file", zap.String("file", name), zap.Error(err))
			fmt.Fprintf(out, "[skip] %s: %v\n", name, err)
			continue
		}
		docs := toDocuments(passages, seen)
		if err := addInBatches(ctx, kb.store, docs); err != nil {
			return fmt.Errorf("importing %s: %w", name, err)
		}
		total += len(docs)
		fmt.Fprintf(out, "[import] %s: +%d\n", name, len(docs))
	}

	count, err := kb.store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[done] imported %d passages, index holds %d\n", total, count)
	return nil
}

func readPassagesFile(name string) ([]evidence.Passage, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readPassages(f)
}

// readPassages decodes a JSON array of passages. Elements that are not
// objects or have no content are dropped.
func readPassages(r io.Reader) ([]evidence.Passage, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("root must be a JSON array: %w", err)
	}
	passages := make([]evidence.Passage, 0, len(raw))
	for _, item := range raw {
		var p evidence.Passage
		if err := json.Unmarshal(item, &p); err != nil {
			continue
		}
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// documentID is stable for a given source_url and content.
func documentID(p evidence.Passage) string {
	return uuid.NewSHA1(passageNamespace, []byte(p.SourceURL+"\x00"+p.Content)).String()
}

// toDocuments converts passages, skipping ids already in seen.
func toDocuments(passages []evidence.Passage, seen map[string]struct{}) []vectorstore.Document {
	docs := make([]vectorstore.Document, 0, len(passages))
	for _, p := range passages {
		id := documentID(p)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		docs = append(docs, vectorstore.Document{
			ID:       id,
			Content:  p.Content,
			Metadata: retrieval.Metadata(p),
		})
	}
	return docs
}

type documentAdder interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error)
}

func addInBatches(ctx context.Context, store documentAdder, docs []vectorstore.Document) error {
	for start := 0; start < len(docs); start += importBatchSize {
		end := min(start+importBatchSize, len(docs))
		if _, err := store.AddDocuments(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}
