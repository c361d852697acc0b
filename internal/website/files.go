package website

import (
	"sort"

	"github.com/maheshrc27/crosspost/internal/models"
)

// FilesFor returns the files of sub that go to the account, in posting order.
// Adapters that cannot take additional files only ever receive the first one.
func FilesFor(sub *models.Submission, accountID string, caps Capabilities) []models.SubmissionFile {
	var out []models.SubmissionFile
	for _, f := range sub.Files {
		if !f.IgnoredBy(accountID) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })

	if !caps.SupportsAdditionalFiles && len(out) > 1 {
		out = out[:1]
	}
	return out
}

// Batches splits files into groups of the adapter's batch size.
func Batches(files []models.SubmissionFile, caps Capabilities) [][]models.SubmissionFile {
	size := caps.BatchSize()
	var out [][]models.SubmissionFile
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		out = append(out, files[start:end])
	}
	return out
}
