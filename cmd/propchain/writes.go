package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/marketplace"
	"github.com/jmerrifield20/propchain/internal/normalize"
	"github.com/jmerrifield20/propchain/internal/wallet"
)

var (
	listTitle       string
	listCategory    string
	listImage       string
	listAddress     string
	listDescription string
	listPrice       string

	buyPrice      string
	reviewRating  int
	reviewComment string
)

func init() {
	rootCmd.AddCommand(listCmd, updateCmd, priceCmd, buyCmd, reviewCmd, likeCmd)

	for _, c := range []*cobra.Command{listCmd, updateCmd} {
		c.Flags().StringVar(&listTitle, "title", "", "Property title")
		c.Flags().StringVar(&listCategory, "category", "", "Category (default General)")
		c.Flags().StringVar(&listImage, "image", "", "Image URL")
		c.Flags().StringVar(&listAddress, "address", "", "Street address")
		c.Flags().StringVar(&listDescription, "description", "", "Description")
	}
	listCmd.Flags().StringVar(&listPrice, "price", "", "Price in ETH")

	buyCmd.Flags().StringVar(&buyPrice, "price", "", "Price in ETH to pay (default: current listing price)")

	reviewCmd.Flags().IntVar(&reviewRating, "rating", 0, "Rating from 1 to 5")
	reviewCmd.Flags().StringVar(&reviewComment, "comment", "", "Review text")
}

func listingInput() marketplace.ListingInput {
	return marketplace.ListingInput{
		Title:       listTitle,
		Category:    listCategory,
		Image:       listImage,
		Address:     listAddress,
		Description: listDescription,
	}
}

// mutation runs op against a freshly wired app and prints its outcome.
func mutation(op func(ctx context.Context, svc *marketplace.Service) (*marketplace.MutationResult, error)) error {
	ctx, cancel := commandContext()
	defer cancel()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := op(ctx, a.svc)
	if format == "json" && res != nil {
		if perr := printJSON(res); perr != nil {
			return perr
		}
	}
	if err != nil {
		return explain(res, err)
	}
	if format != "json" {
		printSettlement(res)
	}
	return nil
}

// explain turns an operation error into a message a user can act on.
func explain(res *marketplace.MutationResult, err error) error {
	if rej, ok := ledger.AsRejected(err); ok {
		if res != nil && res.TxHash != "" {
			return fmt.Errorf("transaction %s failed: %s", res.TxHash, rej.Message)
		}
		return errors.New(rej.Message)
	}
	switch {
	case errors.Is(err, wallet.ErrNotConnected), errors.Is(err, wallet.ErrProviderAbsent):
		return fmt.Errorf("%w: set wallet.private_keys in the config or PROPCHAIN_WALLET_PRIVATE_KEYS", err)
	case errors.Is(err, wallet.ErrWrongNetwork):
		return fmt.Errorf("%w: point ledger.rpc_url at %s", err, wallet.NetworkName(ledger.SupportedNetwork))
	}
	if res != nil && res.TxHash != "" {
		return fmt.Errorf("transaction %s submitted but not settled: %w", res.TxHash, err)
	}
	return err
}

func printSettlement(res *marketplace.MutationResult) {
	fmt.Printf("✓ Transaction confirmed\n\n")
	fmt.Printf("  Tx:     %s\n", res.TxHash)
	if s := res.Settlement; s != nil {
		fmt.Printf("  Block:  %d\n", s.BlockNumber)
		fmt.Printf("  Fee:    %s ETH\n", s.FeeDisplay)
		if s.Value != nil && s.Value.Sign() > 0 {
			fmt.Printf("  Paid:   %s ETH (total %s ETH)\n", normalize.FormatEther(s.Value), s.TotalCost)
		}
		if s.ExplorerURL != "" {
			fmt.Printf("  View:   %s\n", s.ExplorerURL)
		}
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a new property for sale",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutation(func(ctx context.Context, svc *marketplace.Service) (*marketplace.MutationResult, error) {
			return svc.CreateListing(ctx, listingInput(), listPrice)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace the details of a property you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, svc *marketplace.Service) (*marketplace.MutationResult, error) {
			return svc.UpdateListing(ctx, id, listingInput())
		})
	},
}

var priceCmd = &cobra.Command{
	Use:   "price <id> <eth>",
	Short: "Change the price of a property you own",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, svc *marketplace.Service) (*marketplace.MutationResult, error) {
			return svc.UpdatePrice(ctx, id, args[1])
		})
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy <id>",
	Short: "Buy a property at its listed price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, svc *marketplace.Service) (*marketplace.MutationResult, error) {
			if buyPrice == "" {
				// The empty-price path reads the listing from the snapshot.
				if _, err := svc.Cache().RefreshAll(ctx); err != nil {
					return nil, err
				}
			}
			return svc.PurchaseListing(ctx, id, buyPrice)
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "Review a property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, svc *marketplace.Service) (*marketplace.MutationResult, error) {
			return svc.AddReview(ctx, id, reviewRating, reviewComment)
		})
	},
}

var likeCmd = &cobra.Command{
	Use:   "like <id> <review-index>",
	Short: "Like a review",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid review index %q", args[1])
		}
		return mutation(func(ctx context.Context, svc *marketplace.Service) (*marketplace.MutationResult, error) {
			return svc.LikeReview(ctx, id, idx)
		})
	},
}
