package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"libtrack/pkg/apperr"
	"libtrack/pkg/models"
)

const (
	seedAdminID    = "2f1c6a4e-8d0b-4c53-9a57-0f3e2b9d1a01"
	seedReaderID   = "7b9e3d12-45c8-4f0a-b6e1-93d2c4a5f802"
	seedShelfID    = "c4a81f60-2e7d-4b19-8f35-6a0d9e7b4c03"
	seedCategoryID = "e58d2b93-71fa-4c06-a2e4-b8f3105c6d04"
)

var seedBooks = []models.Book{
	{ID: "f7cdc58f-2caf-4b15-9727-f89dcc629b27", Title: "The C++ Programming Language", Author: "Bjarne Stroustrup", CopiesTotal: 3},
	{ID: "0a6e9d4b-3f21-4c8e-9b7a-5d2c1e8f6a05", Title: "The Go Programming Language", Author: "Alan Donovan, Brian Kernighan", CopiesTotal: 2},
	{ID: "9d3b7c1e-6a54-4f2d-8e0b-1c7a2f9e4b06", Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", CopiesTotal: 1},
}

func newSeedCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo users, a shelf, a category and books",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			created, err := a.seed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created=%d\n", created)
			return nil
		},
	}
}

// seed inserts the demo records that are missing and returns how many it
// created. Running it again is a no-op.
func (a *app) seed(ctx context.Context) (int, error) {
	created := 0
	ensure := func(what string, find func() error, create func() error) error {
		err := find()
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err := create(); err != nil {
			return fmt.Errorf("seed %s: %w", what, err)
		}
		created++
		a.logger.Info("seeded record", "kind", what)
		return nil
	}

	users := []models.User{
		{ID: seedAdminID, Email: "admin@libtrack.local", FullName: "Library Admin", Role: models.RoleAdmin, Status: models.UserActive},
		{ID: seedReaderID, Email: "reader@libtrack.local", FullName: "Demo Reader", Role: models.RoleUser, Status: models.UserActive},
	}
	for i := range users {
		u := users[i]
		err := ensure("user",
			func() error { _, err := a.store.FindUser(ctx, u.ID, false); return err },
			func() error { return a.store.CreateUser(ctx, &u) })
		if err != nil {
			return created, err
		}
	}

	err := ensure("shelf",
		func() error { _, err := a.store.FindShelf(ctx, seedShelfID); return err },
		func() error {
			return a.store.CreateShelf(ctx, &models.Shelf{ID: seedShelfID, Code: "A-1", Name: "Computing", Location: "Floor 1"})
		})
	if err != nil {
		return created, err
	}
	err = ensure("category",
		func() error { _, err := a.store.FindCategory(ctx, seedCategoryID); return err },
		func() error {
			return a.store.CreateCategory(ctx, &models.Category{ID: seedCategoryID, Name: "Programming"})
		})
	if err != nil {
		return created, err
	}

	for i := range seedBooks {
		b := seedBooks[i]
		shelfID, categoryID := seedShelfID, seedCategoryID
		b.ShelfID = &shelfID
		b.CategoryID = &categoryID
		b.CopiesAvailable = b.CopiesTotal
		b.Status = models.BookAvailable
		err := ensure("book",
			func() error { _, err := a.store.FindBook(ctx, b.ID, false); return err },
			func() error { return a.store.CreateBook(ctx, &b) })
		if err != nil {
			return created, err
		}
	}
	return created, nil
}
