// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package trailer

import (
	"slices"
	"strings"
)

// A SquashMessage is the decomposition of the concatenated commit
// messages of a pull request, ready to be reassembled into the single
// commit message pushed to Gerrit.
type SquashMessage struct {
	Body        []string // message lines with trailers and metadata removed
	SignedOffBy []string // deduplicated, sorted Signed-off-by lines
	ChangeIDs   []string // Change-Id values found in the original messages
}

// Squash transforms the output of `git log --format=%B --reverse` over a
// commit range into a [SquashMessage].
//
// Dependency-update bots embed manifest blocks in their commit messages
// (bounded by "---", a code fence, or an "updated-dependencies:" header).
// Those lines are stripped; a section ends at the first subsequent line
// that is non-empty, not indented, and not a bullet. The heuristic can
// misread legitimate bullet lists; keep its scope as is.
func Squash(messages string) SquashMessage {
	var sm SquashMessage
	inMetadata := false
	for _, raw := range strings.Split(messages, "\n") {
		ln := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(ln) == "" {
			continue
		}
		trimmed := strings.TrimSpace(ln)
		if trimmed == "---" || trimmed == "```" || strings.HasPrefix(ln, "updated-dependencies:") {
			inMetadata = true
			continue
		}
		if inMetadata {
			if strings.HasPrefix(ln, "- dependency-") || strings.HasPrefix(ln, "  dependency-") {
				continue
			}
			if !strings.HasPrefix(ln, "  ") && !strings.HasPrefix(ln, "-") && !strings.HasPrefix(ln, "dependency-") {
				inMetadata = false
			}
		}
		if strings.HasPrefix(ln, "Change-Id:") {
			_, val, _ := strings.Cut(ln, ":")
			if id := strings.TrimSpace(val); id != "" {
				sm.ChangeIDs = append(sm.ChangeIDs, id)
			}
			continue
		}
		if strings.HasPrefix(ln, "Signed-off-by:") {
			sm.SignedOffBy = append(sm.SignedOffBy, ln)
			continue
		}
		if !inMetadata {
			sm.Body = append(sm.Body, ln)
		}
	}
	slices.Sort(sm.SignedOffBy)
	sm.SignedOffBy = slices.Compact(sm.SignedOffBy)
	return sm
}

// Compose assembles the final commit message: body, then the sorted
// Signed-off-by block, then the reused Change-Id line when one was
// recovered from a prior submission.
func (sm SquashMessage) Compose(reusedID string) string {
	msg := strings.TrimSpace(strings.Join(sm.Body, "\n"))
	if len(sm.SignedOffBy) > 0 {
		msg += "\n\n" + strings.Join(sm.SignedOffBy, "\n")
	}
	if reusedID != "" {
		msg += "\n\nChange-Id: " + reusedID
	}
	return msg
}
