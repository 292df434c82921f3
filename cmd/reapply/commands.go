package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/company-marketplace/backend/internal/auth"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type applyResult struct {
	ID      string   `json:"id"`
	Applied bool     `json:"applied"`
	Error   string   `json:"error,omitempty"`
	Failed  []string `json:"failed_signed_ids,omitempty"`
}

func newListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approved changes without applied_at",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			records, err := e.moderation.ListUnapplied(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(records)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of records")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var operatorID string

	cmd := &cobra.Command{
		Use:   "apply ID...",
		Short: "Re-run apply for the given approved change ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			operator := models.Actor{Role: models.RoleAdmin}
			if operatorID != "" {
				id, err := uuid.Parse(operatorID)
				if err != nil {
					return fmt.Errorf("invalid --operator: %w", err)
				}
				operator.UserID = id
			}

			ids := make([]uuid.UUID, 0, len(args))
			for _, a := range args {
				id, err := uuid.Parse(a)
				if err != nil {
					return fmt.Errorf("invalid change id %q: %w", a, err)
				}
				ids = append(ids, id)
			}

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			results := make([]applyResult, 0, len(ids))
			failed := 0
			for _, id := range ids {
				res := applyResult{ID: id.String()}
				decision, err := e.moderation.RetryApply(cmd.Context(), id, operator)
				if decision != nil && decision.Outcome != nil {
					res.Failed = decision.Outcome.Failed
				}
				if err != nil {
					res.Error = err.Error()
					failed++
				} else {
					res.Applied = true
				}
				results = append(results, res)
			}
			if err := writeJSON(results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d changes could not be applied", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&operatorID, "operator", "", "Operator user UUID recorded in the audit log (default: system)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			user, err := e.users.GetByID(cmd.Context(), id)
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("user %s does not exist", id)
			}
			if err != nil {
				return err
			}

			token, err := auth.GenerateJWT(e.cfg.JWTSecret, user, ttl)
			if err != nil {
				return err
			}
			return writeJSON(map[string]any{"token": token, "user": user})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User UUID (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSignBlobCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "sign-blob",
		Short: "Issue a signed id for an uploaded blob, for use in change payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			blob, err := e.blobs.GetBlobByKey(cmd.Context(), key)
			if err != nil {
				return err
			}
			signed, err := e.signedIDs.Sign(blob.Key)
			if err != nil {
				return err
			}
			return writeJSON(map[string]any{"signed_id": signed, "blob": blob})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Blob storage key (required)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
