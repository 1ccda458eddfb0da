package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/propchain/internal/events"
	"github.com/jmerrifield20/propchain/internal/marketplace"
	"github.com/jmerrifield20/propchain/internal/model"
)

func init() {
	rootCmd.AddCommand(listingsCmd, listingCmd, reviewsCmd, topCmd, eventsCmd, statsCmd, userCmd)

	eventsCmd.Flags().StringVar(&eventsName, "name", "", "Event name (PropertyListed, PropertySold, ReviewAdded, ReviewLiked); empty for all")
	eventsCmd.Flags().Uint64Var(&eventsFrom, "from", 0, "First block (0 for genesis)")
	eventsCmd.Flags().Uint64Var(&eventsTo, "to", 0, "Last block (0 for latest)")
	eventsCmd.Flags().IntVar(&eventsRecent, "recent", 0, "Show only the N newest events")
	eventsCmd.Flags().StringVar(&eventsAccount, "account", "", "Only events involving this account")
	eventsCmd.Flags().Uint64Var(&eventsListing, "listing", 0, "Only events about this listing")

	userCmd.Flags().BoolVar(&userReviews, "reviews", false, "Show the account's reviews instead of its listings")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid property id %q", s)
	}
	return id, nil
}

func printListings(listings []model.Listing) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tPRICE (ETH)\tOWNER\tREVIEWS")
	for _, l := range listings {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n", l.ID, l.Title, l.Category, l.Price, l.ShortOwner, l.ReviewCount())
	}
	return w.Flush()
}

func printReviews(reviews []model.Review) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tRATING\tLIKES\tREVIEWER\tCOMMENT")
	for _, r := range reviews {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", r.Index, r.Rating, r.Likes, r.ShortReviewer, r.Comment)
	}
	return w.Flush()
}

func printEvents(evs []events.Event) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BLOCK\tEVENT\tTX\tDATA")
	for _, e := range evs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", e.BlockNumber, e.Name, e.TxHash, e.Data)
	}
	return w.Flush()
}

// ── listings ─────────────────────────────────────────────────────────────────

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "List every property on the marketplace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		listings, err := a.svc.FetchAllListings(ctx)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(listings)
		}
		if len(listings) == 0 {
			fmt.Println("No properties listed yet.")
			return nil
		}
		return printListings(listings)
	},
}

// ── listing ──────────────────────────────────────────────────────────────────

var listingCmd = &cobra.Command{
	Use:   "listing <id>",
	Short: "Show one property with its reviews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.svc.FetchListing(ctx, id)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(d)
		}
		if !d.Found {
			return fmt.Errorf("property %d not found", id)
		}
		l := d.Listing
		fmt.Printf("#%d %s (%s)\n", l.ID, l.Title, l.Category)
		fmt.Printf("  Price:    %s ETH\n", l.Price)
		fmt.Printf("  Owner:    %s\n", l.Owner)
		fmt.Printf("  Address:  %s\n", l.Address)
		fmt.Printf("  Rating:   %.1f from %d review(s)\n\n", d.Summary.Average, d.Summary.Total)
		fmt.Println(l.Description)
		if len(d.Reviews) > 0 {
			fmt.Println()
			return printReviews(d.Reviews)
		}
		return nil
	},
}

// ── reviews ──────────────────────────────────────────────────────────────────

var reviewsCmd = &cobra.Command{
	Use:   "reviews <id>",
	Short: "Show the reviews of a property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.svc.FetchReviews(ctx, id)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(r)
		}
		if !r.Found {
			return fmt.Errorf("property %d not found", id)
		}
		fmt.Printf("Average %.1f from %d review(s)\n\n", r.Summary.Average, r.Summary.Total)
		return printReviews(r.Reviews)
	},
}

// ── top ──────────────────────────────────────────────────────────────────────

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the highest-rated property",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		// Warm the snapshot so the result carries reviewers.
		if _, err := a.svc.FetchAllListings(ctx); err != nil {
			return err
		}
		top, err := a.svc.FetchHighestRated(ctx)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(top)
		}
		if !top.Found {
			fmt.Println(top.Message)
			return nil
		}
		fmt.Printf("#%d %s, %s ETH, owned by %s\n", top.ID, top.Listing.Title, top.Listing.Price, top.Listing.ShortOwner)
		return nil
	},
}

// ── events ───────────────────────────────────────────────────────────────────

var (
	eventsName    string
	eventsFrom    uint64
	eventsTo      uint64
	eventsRecent  int
	eventsAccount string
	eventsListing uint64
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show contract events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var evs []events.Event
		switch {
		case eventsAccount != "":
			evs, err = a.svc.FetchUserEvents(ctx, eventsAccount)
		case eventsListing != 0:
			evs, err = a.svc.FetchListingEvents(ctx, eventsListing)
		case eventsRecent > 0:
			evs, err = a.svc.FetchRecentEvents(ctx, eventsRecent)
		default:
			var from, to *big.Int
			if eventsFrom > 0 {
				from = new(big.Int).SetUint64(eventsFrom)
			}
			if eventsTo > 0 {
				to = new(big.Int).SetUint64(eventsTo)
			}
			evs, err = a.svc.FetchEvents(ctx, eventsName, from, to)
		}
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(evs)
		}
		return printEvents(evs)
	},
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show marketplace totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.svc.PlatformStats(ctx)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(p)
		}
		fmt.Printf("Properties:   %d\n", p.TotalListings)
		fmt.Printf("Volume:       %s ETH\n", p.TotalVolume)
		fmt.Printf("Owners:       %d\n", p.ActiveUsers)
		fmt.Printf("Reviews:      %d\n", p.TotalReviews)
		return nil
	},
}

// ── user ─────────────────────────────────────────────────────────────────────

var userReviews bool

var userCmd = &cobra.Command{
	Use:   "user <account>",
	Short: "Show the listings (or reviews) of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if userReviews {
			r, err := a.svc.FetchUserReviews(ctx, args[0])
			if err != nil {
				return err
			}
			if format == "json" {
				return printJSON(r)
			}
			fmt.Printf("%s: %d review(s), %d like(s), average %.1f\n\n",
				r.Stats.ShortAccount, r.Stats.TotalReviews, r.Stats.TotalLikes, r.Stats.AverageRating)
			return printUserReviews(r.Reviews)
		}

		ul, err := a.svc.FetchUserListings(ctx, args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(ul)
		}
		fmt.Printf("%s: %d listing(s), %d active, %s ETH total, average rating %.1f\n\n",
			ul.Stats.ShortAccount, ul.Stats.TotalListings, ul.Stats.ActiveListings, ul.Stats.TotalValue, ul.Stats.AverageRating)
		listings := make([]model.Listing, len(ul.Listings))
		for i, l := range ul.Listings {
			listings[i] = l.Listing
		}
		return printListings(listings)
	},
}

func printUserReviews(reviews []marketplace.UserReview) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROPERTY\tTITLE\tRATING\tLIKES\tCOMMENT")
	for _, r := range reviews {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", r.ListingID, r.ListingTitle, r.Rating, r.Likes, r.Comment)
	}
	return w.Flush()
}
