package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rushteam/ratingkit/core"
)

// 批量写入的批大小
const loadBatchSize = 1000

// batchWriter 是支持批量写入的后端（KVRatingStore / SQLRatingStore）。
type batchWriter interface {
	PutRatings(ctx context.Context, ratings []core.Rating) error
}

// LoadRatings 从分隔文本读取评分并写入 w，返回写入条数。
//
// 每行格式：user<sep>item<sep>score[<sep>timestamp...]，多余列忽略。
// MovieLens u.data 为 tab 分隔，sep 传 '\t'；空行跳过。
func LoadRatings(ctx context.Context, r io.Reader, w core.RatingWriter, sep rune) (int, error) {
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true

	bw, batched := w.(batchWriter)
	batch := make([]core.Rating, 0, loadBatchSize)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := bw.PutRatings(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return total, core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput,
					fmt.Sprintf("store: line %d: %v", pe.Line, pe.Err))
			}
			return total, err
		}
		line, _ := reader.FieldPos(0)
		rating, err := parseRating(record)
		if err != nil {
			return total, core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput,
				fmt.Sprintf("store: line %d: %v", line, err))
		}

		if batched {
			batch = append(batch, rating)
			if len(batch) >= loadBatchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
			continue
		}
		if err := w.PutRating(ctx, rating); err != nil {
			return total, err
		}
		total++
	}

	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func parseRating(record []string) (core.Rating, error) {
	if len(record) < 3 {
		return core.Rating{}, fmt.Errorf("expected at least 3 fields, got %d", len(record))
	}
	userID := strings.TrimSpace(record[0])
	itemID := strings.TrimSpace(record[1])
	if userID == "" || itemID == "" {
		return core.Rating{}, errors.New("empty user or item id")
	}
	score, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return core.Rating{}, fmt.Errorf("invalid score %q", record[2])
	}
	return core.Rating{UserID: userID, ItemID: itemID, Score: score}, nil
}
