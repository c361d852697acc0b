// Package validation runs the pre-flight checks that keep a submission out of
// the post queue when it could not possibly be posted.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/maheshrc27/crosspost/internal/website"
)

// sniffLen is how many leading bytes filetype needs to recognise a format.
const sniffLen = 262

type Validator struct {
	accounts repository.AccountRepository
	registry *website.Registry
	files    storage.Store
}

// New builds a Validator. files may be nil, in which case stored content is
// not sniffed and the declared MIME type is trusted.
func New(accounts repository.AccountRepository, registry *website.Registry, files storage.Store) *Validator {
	return &Validator{accounts: accounts, registry: registry, files: files}
}

// Validate returns a *apperr.ValidationError listing every blocking problem,
// or nil. Other errors are infrastructure failures.
func (v *Validator) Validate(ctx context.Context, sub *models.Submission) error {
	var problems []string
	if sub.IsArchived {
		problems = append(problems, "submission is archived")
	}

	targets := sub.AccountOptions()
	if len(targets) == 0 {
		problems = append(problems, "submission has no website options")
	}
	if sub.Type == models.SubmissionTypeFile && len(sub.Files) == 0 {
		problems = append(problems, "file submission has no files")
	}

	sniffed := make(map[string]string)
	for _, opts := range targets {
		found, err := v.validateAccount(ctx, sub, opts.AccountID, sniffed)
		if err != nil {
			return err
		}
		problems = append(problems, found...)
	}

	if len(problems) > 0 {
		return &apperr.ValidationError{SubmissionID: sub.ID, Problems: problems}
	}
	return nil
}

func (v *Validator) validateAccount(ctx context.Context, sub *models.Submission, accountID string, sniffed map[string]string) ([]string, error) {
	acc, err := v.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	if acc == nil {
		return []string{fmt.Sprintf("account %s does not exist", accountID)}, nil
	}

	adapter, err := v.registry.Get(acc.Website)
	if err != nil {
		return []string{fmt.Sprintf("account %s: website %s is not supported", acc.ID, acc.Website)}, nil
	}
	caps := adapter.Capabilities()

	var result website.ValidationResult
	switch sub.Type {
	case models.SubmissionTypeFile:
		if !caps.SupportsFile {
			return []string{fmt.Sprintf("account %s: %s does not accept file submissions", acc.ID, acc.Website)}, nil
		}
		files := website.FilesFor(sub, acc.ID, caps)
		if len(files) == 0 {
			return []string{fmt.Sprintf("account %s: every file is ignored for this account", acc.ID)}, nil
		}

		var problems []string
		for _, f := range files {
			mime, err := v.mimeOf(ctx, f, sniffed)
			if errors.Is(err, apperr.ErrNotFound) {
				problems = append(problems, fmt.Sprintf("account %s: file %s is missing from storage", acc.ID, f.FileName))
				continue
			}
			if err != nil {
				return nil, err
			}
			if !caps.AcceptsMime(mime) {
				problems = append(problems, fmt.Sprintf("account %s: %s does not accept %s (%s)", acc.ID, acc.Website, f.FileName, mime))
			}
		}
		if len(problems) > 0 {
			return problems, nil
		}

		postFiles := make([]website.PostFile, len(files))
		for i, f := range files {
			postFiles[i] = website.PostFile{SubmissionFile: f}
		}
		result = adapter.OnValidateFileSubmission(ctx, website.FilePostData{
			Submission: sub,
			Account:    acc,
			Options:    sub.MergedData(acc.ID),
			Files:      postFiles,
			Opener:     v.files,
		})

	case models.SubmissionTypeMessage:
		if !caps.SupportsMessage {
			return []string{fmt.Sprintf("account %s: %s does not accept message submissions", acc.ID, acc.Website)}, nil
		}
		result = adapter.OnValidateMessageSubmission(ctx, website.MessagePostData{
			Submission: sub,
			Account:    acc,
			Options:    sub.MergedData(acc.ID),
		})

	default:
		return []string{fmt.Sprintf("unknown submission type %q", sub.Type)}, nil
	}

	for _, w := range result.Warnings {
		slog.Warn("submission validation warning", "submission_id", sub.ID, "account_id", acc.ID, "warning", w)
	}
	problems := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		problems = append(problems, fmt.Sprintf("account %s: %s", acc.ID, e))
	}
	return problems, nil
}

// mimeOf prefers the type sniffed from stored content over the declared one.
func (v *Validator) mimeOf(ctx context.Context, f models.SubmissionFile, sniffed map[string]string) (string, error) {
	if mime, ok := sniffed[f.ID]; ok {
		return mime, nil
	}
	mime := f.MimeType

	if v.files != nil && f.StorageKey != "" {
		head, err := v.files.Head(ctx, f.StorageKey, sniffLen)
		if err != nil {
			return "", fmt.Errorf("read header of %s: %w", f.StorageKey, err)
		}

		kind, err := filetype.Match(head)
		if err == nil && kind != types.Unknown {
			mime = kind.MIME.Value
		}
	}

	sniffed[f.ID] = mime
	return mime, nil
}
