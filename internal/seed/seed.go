package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authordomain "github.com/chapterly/revenue/internal/author/domain"
	bookdomain "github.com/chapterly/revenue/internal/book/domain"
	engagementdomain "github.com/chapterly/revenue/internal/engagement/domain"
	"gorm.io/gorm"
)

type demoAuthor struct {
	name        string
	destination string
	books       []demoBook
}

type demoBook struct {
	title  string
	status bookdomain.BookStatus
	units  []int64
}

var demoCatalog = []demoAuthor{
	{
		name:        "Mara Ellison",
		destination: "acct_demo_mara",
		books: []demoBook{
			{title: "The Glass Orchard", status: bookdomain.BookStatusPublished, units: []int64{34, 18, 22}},
			{title: "Winter Letters", status: bookdomain.BookStatusPublished, units: []int64{12, 9}},
		},
	},
	{
		name:        "Theo Brandt",
		destination: "acct_demo_theo",
		books: []demoBook{
			{title: "Salt and Circuit", status: bookdomain.BookStatusPublished, units: []int64{51, 27}},
			{title: "Unfinished Drafts", status: bookdomain.BookStatusDraft, units: []int64{40}},
		},
	},
	{
		name:        "June Okafor",
		destination: "acct_demo_june",
		books: []demoBook{
			{title: "A Smaller Sky", status: bookdomain.BookStatusPublished, units: []int64{3}},
		},
	},
}

// EnsureDemoCatalog seeds a small author catalog with reading activity in the
// current month. Safe to call repeatedly; it is a no-op once authors exist.
func EnsureDemoCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&authordomain.Author{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		reader := node.Generate()
		for _, a := range demoCatalog {
			author := authordomain.Author{
				ID:                node.Generate(),
				DisplayName:       a.name,
				PayoutDestination: a.destination,
				CreatedAt:         now,
			}
			if err := tx.Create(&author).Error; err != nil {
				return err
			}

			for _, b := range a.books {
				book := bookdomain.Book{
					ID:        node.Generate(),
					AuthorID:  author.ID,
					Title:     b.title,
					Status:    b.status,
					CreatedAt: now,
				}
				if err := tx.Create(&book).Error; err != nil {
					return err
				}

				for i, units := range b.units {
					event := engagementdomain.ReadingActivityEvent{
						ID:         node.Generate(),
						BookID:     book.ID,
						ReaderID:   reader,
						UnitCount:  units,
						OccurredAt: now.Add(-time.Duration(i+1) * time.Hour),
					}
					if err := tx.Create(&event).Error; err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}
