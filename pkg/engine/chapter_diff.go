package engine

import (
	"regexp"
	"strconv"
	"time"

	"github.com/mangasync/mangasync/pkg/stores"
)

// diffChapters computes the changes that turn local into remote. Duplicate
// remote keys keep their first occurrence.
func diffChapters(local []*stores.Chapter, remote []stores.ChapterInfo, mangaID int64, now time.Time) stores.ChapterDiff {
	byKey := make(map[string]*stores.Chapter, len(local))
	for _, c := range local {
		byKey[c.Key] = c
	}

	var diff stores.ChapterDiff
	seen := make(map[string]struct{}, len(remote))
	order := 0
	for _, rc := range remote {
		if _, dup := seen[rc.Key]; dup {
			continue
		}
		seen[rc.Key] = struct{}{}

		number := rc.Number
		if number <= 0 {
			number = recognizeNumber(rc.Name)
		}

		existing, ok := byKey[rc.Key]
		if !ok {
			diff.Added = append(diff.Added, &stores.Chapter{
				MangaID:     mangaID,
				Key:         rc.Key,
				Name:        rc.Name,
				Number:      number,
				Scanlator:   rc.Scanlator,
				DateUpload:  rc.DateUpload,
				DateFetch:   now,
				SourceOrder: order,
			})
			order++
			continue
		}

		if existing.Name != rc.Name ||
			existing.Number != number ||
			existing.Scanlator != rc.Scanlator ||
			!existing.DateUpload.Equal(rc.DateUpload) ||
			existing.SourceOrder != order {
			updated := *existing
			updated.Name = rc.Name
			updated.Number = number
			updated.Scanlator = rc.Scanlator
			updated.DateUpload = rc.DateUpload
			updated.SourceOrder = order
			diff.Updated = append(diff.Updated, &updated)
		}
		order++
	}

	for _, c := range local {
		if _, ok := seen[c.Key]; !ok {
			diff.Deleted = append(diff.Deleted, c)
		}
	}
	return diff
}

var chapterNumberPattern = regexp.MustCompile(`(?i)\b(?:ch(?:apter)?|ep(?:isode)?)\.?\s*(\d+(?:\.\d+)?)`)

// recognizeNumber extracts a chapter number from a name such as
// "Vol.2 Ch.14.5: Title". It returns -1 when none is found.
func recognizeNumber(name string) float64 {
	m := chapterNumberPattern.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return -1
	}
	return n
}
