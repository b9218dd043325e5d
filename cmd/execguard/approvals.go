package main

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/execguard/internal/clifmt"
	"github.com/spf13/cobra"
)

func newApprovalsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List recent approval decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := approvalStoreFromViper(logger)
			if store == nil {
				return fmt.Errorf("approval store is not available; check db.dsn")
			}
			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list approvals: %w", err)
			}
			if len(records) == 0 {
				fmt.Println(clifmt.Dim("no approvals recorded"))
				return nil
			}
			for _, rec := range records {
				line := fmt.Sprintf("%s  %-8s  %s", rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Status, rec.Command)
				switch rec.Status {
				case "approved", "edited":
					fmt.Println(clifmt.Success(line))
				case "rejected":
					fmt.Println(clifmt.Warn(line))
				default:
					fmt.Println(line)
				}
				var details []string
				if rec.ApproverName != "" {
					details = append(details, "by "+rec.ApproverName)
				}
				if rec.Source != "" {
					details = append(details, "via "+rec.Source)
				}
				if rec.EditedCommand != "" {
					details = append(details, "edited to: "+rec.EditedCommand)
				}
				if rec.Comment != "" {
					details = append(details, "comment: "+rec.Comment)
				}
				if rec.RiskLevel != "" {
					details = append(details, "risk "+rec.RiskLevel)
				}
				if len(details) > 0 {
					fmt.Println(clifmt.Dim("    " + strings.Join(details, ", ")))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records to show")
	return cmd
}
