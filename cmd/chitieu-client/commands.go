package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chitieu/internal/core"
	"chitieu/internal/webui"
)

var errEditFailed = errors.New("edit failed")

func newShowCmd(flags *rootFlags) *cobra.Command {
	var preset string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the dashboard for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			p, err := openPage(ctx, flags)
			if err != nil {
				return err
			}
			defer p.close()

			if err := p.load(ctx, nil); err != nil {
				p.printNotes(cmd)
				return err
			}
			if preset != "" {
				p.ctl.Dispatch(&webui.PickPreset{Key: preset})
				p.ctl.Dispatch(&webui.Submit{Form: webui.FormFilter})
				if err := p.ctl.Settle(ctx); err != nil {
					return err
				}
			}

			snap, err := p.ctl.Snapshot(ctx)
			if err != nil {
				return err
			}
			printSnapshot(cmd, snap)
			p.printNotes(cmd)
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "Named date range, see presets")
	return cmd
}

func printSnapshot(cmd *cobra.Command, snap webui.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", snap.Range)
	fmt.Fprintf(out, "Tổng: %s  Trung bình/ngày: %s  Số khoản: %s\n\n", snap.Total, snap.AvgPerDay, snap.Count)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNGÀY\tMÔ TẢ\tDANH MỤC\tSỐ TIỀN")
	for _, r := range snap.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Date, r.Description, core.CategoryLabel(r.Category), r.Amount)
	}
	tw.Flush()
}

func newEditCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <field> <value>",
		Short: "Edit one field of an expense inline",
		Long: `Edit focuses the field on the dashboard, types the value and leaves
the field, exactly as a browser user would. Fields: amount, description,
category.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid expense id %q", args[0])
			}
			key := webui.FieldKey{ExpenseID: id, Field: args[1]}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			p, err := openPage(ctx, flags)
			if err != nil {
				return err
			}
			defer p.close()

			if err := p.load(ctx, nil); err != nil {
				p.printNotes(cmd)
				return err
			}
			// The current range may not show the expense.
			if _, err := p.ctl.FieldText(ctx, key); err != nil {
				return fmt.Errorf("field %s is not on the current page", key)
			}

			p.ctl.Dispatch(&webui.Focus{Key: key})
			if key.Field == core.FieldCategory {
				p.ctl.Dispatch(&webui.Change{Key: key, Value: args[2]})
			} else {
				p.ctl.Dispatch(&webui.Input{Key: key, Text: args[2]})
				p.ctl.Dispatch(&webui.Blur{Key: key})
			}
			if err := p.ctl.Settle(ctx); err != nil {
				return err
			}

			s, ok, err := p.ctl.Session(ctx, key)
			if err != nil {
				return err
			}
			failed := p.printNotes(cmd)
			if ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", key, s.Status)
				failed = failed || s.Status == webui.Failed
			}
			if text, err := p.ctl.FieldText(ctx, key); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			if failed {
				return errEditFailed
			}
			return nil
		},
	}
}

func newAddCmd(flags *rootFlags) *cobra.Command {
	var amount, description, category, date, rawText string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense through the creation form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			p, err := openPage(ctx, flags)
			if err != nil {
				return err
			}
			defer p.close()

			if err := p.load(ctx, nil); err != nil {
				p.printNotes(cmd)
				return err
			}

			fields := []struct{ name, value string }{
				{core.FieldAmount, amount},
				{core.FieldDescription, description},
				{core.FieldCategory, category},
				{core.FieldDate, date},
				{core.FieldRawText, rawText},
			}
			for _, f := range fields {
				if f.value != "" {
					p.ctl.Dispatch(&webui.SetFormField{Form: webui.FormExpense, Name: f.name, Value: f.value})
				}
			}
			p.ctl.Dispatch(&webui.Submit{Form: webui.FormExpense})
			if err := p.ctl.Settle(ctx); err != nil {
				return err
			}

			if p.printNotes(cmd) {
				return errors.New("expense not created")
			}
			snap, err := p.ctl.Snapshot(ctx)
			if err != nil {
				return err
			}
			printSnapshot(cmd, snap)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&amount, "amount", "", "Amount in đồng, e.g. 45.000")
	f.StringVar(&description, "description", "", "Description")
	f.StringVar(&category, "category", "", "Category key")
	f.StringVar(&date, "date", "", "Date, e.g. 2026-10-14T08:30")
	f.StringVar(&rawText, "raw-text", "", "Free text note")
	cobra.CheckErr(cmd.MarkFlagRequired("amount"))
	return cmd
}
