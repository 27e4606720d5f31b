package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wallet-ticket-service/internal/store"
	"wallet-ticket-service/internal/utils"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Manage issued tickets",
}

var listTicketsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tickets",
	Run: func(cmd *cobra.Command, args []string) {
		listTickets(context.Background())
	},
}

var issueTicketCmd = &cobra.Command{
	Use:   "issue <email> <name>",
	Short: "Create a ticket without sending an email",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		issueTicket(context.Background(), args[0], args[1])
	},
}

var boothTicketCmd = &cobra.Command{
	Use:   "booth <code> <count>",
	Short: "Set the booth visit count for a ticket",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var count int
		if _, err := fmt.Sscanf(args[1], "%d", &count); err != nil || count < 0 {
			fmt.Fprintf(os.Stderr, "Invalid count: %s\n", args[1])
			os.Exit(1)
		}
		setBoothVisited(context.Background(), args[0], count)
	},
}

func listTickets(ctx context.Context) {
	tickets, err := st.ListTickets(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list tickets: %v\n", err)
		os.Exit(1)
	}

	if len(tickets) == 0 {
		fmt.Println("No tickets found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tCODE\tSERIAL\tBOOTHS")
	fmt.Fprintln(w, "-----\t----\t----\t------\t------")
	for _, t := range tickets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.Email, t.Name, t.Code, t.Serial, t.BoothVisited)
	}
	w.Flush()
}

func issueTicket(ctx context.Context, addr, name string) {
	if existing, err := st.FindTicketByEmail(ctx, addr); err == nil {
		fmt.Printf("Ticket already exists with code %s\n", existing.Code)
		return
	}

	code, err := utils.GenerateCode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate code: %v\n", err)
		os.Exit(1)
	}

	ticket := store.Ticket{
		Email:  addr,
		Name:   name,
		Code:   code,
		Serial: utils.Serial(addr),
	}
	if err := st.PutTicket(ctx, ticket); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to store ticket: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ticket created with code %s\n", code)
}

func setBoothVisited(ctx context.Context, code string, count int) {
	if _, err := st.GetTicketByCode(ctx, code); err != nil {
		fmt.Fprintf(os.Stderr, "Ticket not found: %v\n", err)
		os.Exit(1)
	}
	if err := st.SetTicketBoothVisited(ctx, code, count); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update ticket: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Booth visits for %s set to %d\n", code, count)
}

func init() {
	ticketCmd.AddCommand(listTicketsCmd)
	ticketCmd.AddCommand(issueTicketCmd)
	ticketCmd.AddCommand(boothTicketCmd)
	rootCmd.AddCommand(ticketCmd)
}
