package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/hyperbroker/hyperbroker/internal/config"
	"github.com/hyperbroker/hyperbroker/pkg/broker"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

const defaultKeyEnv = "HP_PRIVATE_KEY"

func main() {
	var (
		testnet      = flag.Bool("testnet", false, "Use the testnet API")
		key          = flag.String("key", "", "Private key hex (prefer --key-env)")
		keyEnv       = flag.String("key-env", defaultKeyEnv, "Environment variable holding the private key")
		logLevel     = flag.String("log-level", "warn", "Log level (debug|info|warn|error|silent)")
		jsonOut      = flag.Bool("json", false, "Print results as JSON")
		noBuilderFee = flag.Bool("no-builder-fee", false, "Disable the builder fee")
	)
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := buildConfig(*testnet, *key, *keyEnv, *logLevel, *noBuilderFee)
	if err != nil {
		fatal(err)
	}
	cfg.ConfigureLogging()

	b, err := broker.New(cfg)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := b.Connect(ctx); err != nil {
		fatal(err)
	}

	command, rest := args[0], args[1:]
	if err := run(ctx, b, command, rest, *jsonOut); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, b *broker.Broker, command string, args []string, jsonOut bool) error {
	switch command {
	case "markets":
		if len(args) < 1 {
			return usageError("markets <asset>")
		}
		return cmdMarkets(b, args[0], jsonOut)

	case "book":
		if len(args) < 1 {
			return usageError("book <asset> [--depth n]")
		}
		fs := flag.NewFlagSet("book", flag.ExitOnError)
		depth := fs.Int("depth", 10, "Levels to print per side")
		fs.Parse(args[1:])
		return cmdBook(ctx, b, args[0], *depth, jsonOut)

	case "funding":
		if len(args) < 1 {
			return usageError("funding <asset>")
		}
		return cmdFunding(ctx, b, args[0], jsonOut)

	case "quote":
		if len(args) < 3 {
			return usageError("quote <asset> <buy|sell> <size> [--split]")
		}
		fs := flag.NewFlagSet("quote", flag.ExitOnError)
		split := fs.Bool("split", false, "Quote a multi-market split")
		fs.Parse(args[3:])
		side, err := parseSide(args[1])
		if err != nil {
			return err
		}
		size, err := parseSize(args[2])
		if err != nil {
			return err
		}
		return cmdQuote(ctx, b, args[0], side, size, *split, jsonOut)

	case "long", "short":
		if len(args) < 2 {
			return usageError(command + " <asset> <size> [--split]")
		}
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		split := fs.Bool("split", false, "Split the order across markets")
		fs.Parse(args[2:])
		size, err := parseSize(args[1])
		if err != nil {
			return err
		}
		side := types.SideBuy
		if command == "short" {
			side = types.SideSell
		}
		return cmdTrade(ctx, b, args[0], side, size, *split, jsonOut)

	case "positions":
		return cmdPositions(ctx, b, jsonOut)

	case "balance":
		return cmdBalance(ctx, b, jsonOut)

	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func buildConfig(testnet bool, key, keyEnv, logLevel string, noBuilderFee bool) (*config.Config, error) {
	v := viper.New()
	v.Set("testnet", testnet)
	v.Set("log_level", logLevel)
	v.SetDefault("default_slippage", 0.01)

	privateKey := key
	if privateKey == "" && keyEnv != "" {
		privateKey = os.Getenv(keyEnv)
	}
	if privateKey != "" {
		v.Set("private_key", privateKey)
	}
	if noBuilderFee {
		v.Set("builder", "none")
	}
	return config.FromViper(v)
}

func cmdMarkets(b *broker.Broker, asset string, jsonOut bool) error {
	markets, err := b.Markets(asset)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(markets)
	}
	fmt.Printf("%-18s %-12s %-8s %-10s %-12s %-12s\n",
		"COIN", "DEX", "COLL", "FUNDING", "MARK", "OPEN INT")
	for _, m := range markets {
		dex := m.DexName
		if m.IsNative {
			dex = "native"
		}
		fmt.Printf("%-18s %-12s %-8s %-10s %-12s %-12s\n",
			m.Coin, dex, m.Collateral, m.Funding.String(),
			m.MarkPrice.String(), m.OpenInterest.String())
	}
	return nil
}

func cmdBook(ctx context.Context, b *broker.Broker, asset string, depth int, jsonOut bool) error {
	merged, err := b.Book(ctx, asset)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(merged)
	}

	fmt.Printf("%s  (%d markets", merged.BaseAsset, len(merged.PerMarketBooks))
	if len(merged.FailedCoins) > 0 {
		fmt.Printf(", %d failed", len(merged.FailedCoins))
	}
	fmt.Println(")")

	fmt.Printf("%-14s %-14s %s\n", "PRICE", "SIZE", "SOURCES")
	printSide := func(label string, levels []types.AggregatedLevel) {
		fmt.Println(label)
		for i, lvl := range levels {
			if i >= depth {
				break
			}
			sources := make([]string, len(lvl.Sources))
			for j, src := range lvl.Sources {
				sources[j] = fmt.Sprintf("%s:%s", src.Coin, src.Size.String())
			}
			fmt.Printf("%-14s %-14s %s\n",
				lvl.Price.String(), lvl.TotalSize.String(), strings.Join(sources, " "))
		}
	}
	printSide("asks:", merged.Asks)
	printSide("bids:", merged.Bids)
	return nil
}

func cmdFunding(ctx context.Context, b *broker.Broker, asset string, jsonOut bool) error {
	infos, err := b.Funding(ctx, asset)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(infos)
	}
	fmt.Printf("%-18s %-12s %-12s %s\n", "COIN", "DEX", "FUNDING", "SAMPLES(24H)")
	for _, info := range infos {
		dex := info.Market.DexName
		if info.Market.IsNative {
			dex = "native"
		}
		fmt.Printf("%-18s %-12s %-12s %d\n",
			info.Market.Coin, dex, info.Market.Funding.String(), len(info.History))
	}
	return nil
}

func cmdQuote(ctx context.Context, b *broker.Broker, asset string, side types.Side,
	size decimal.Decimal, split, jsonOut bool) error {

	if split {
		quote, err := b.QuoteSplit(ctx, asset, side, size)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(quote)
		}
		printSplitQuote(quote)
		return nil
	}

	quote, err := b.Quote(ctx, asset, side, size)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(quote)
	}
	printQuote(quote)
	return nil
}

func cmdTrade(ctx context.Context, b *broker.Broker, asset string, side types.Side,
	size decimal.Decimal, split, jsonOut bool) error {

	if split {
		quote, err := b.QuoteSplit(ctx, asset, side, size)
		if err != nil {
			return err
		}
		receipt, err := b.ExecuteSplit(ctx, quote)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(receipt)
		}
		printSplitReceipt(receipt)
		if !receipt.Success {
			return fmt.Errorf("split execution failed: %s", receipt.Error)
		}
		return nil
	}

	quote, receipt, err := tradeSingle(ctx, b, asset, side, size)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(receipt)
	}
	printQuote(quote)
	if receipt.Success {
		fmt.Printf("executed: filled %s @ %s (order %d)\n",
			receipt.FilledSize.String(), receipt.AvgPrice.String(), receipt.OrderID)
		return nil
	}
	return fmt.Errorf("execution failed: %s", receipt.Error)
}

func tradeSingle(ctx context.Context, b *broker.Broker, asset string, side types.Side,
	size decimal.Decimal) (*types.Quote, *types.ExecutionReceipt, error) {
	if side == types.SideBuy {
		return b.Long(ctx, asset, size)
	}
	return b.Short(ctx, asset, size)
}

func cmdPositions(ctx context.Context, b *broker.Broker, jsonOut bool) error {
	grouped, err := b.GroupedPositions(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(grouped)
	}
	if len(grouped) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	fmt.Printf("%-10s %-18s %-5s %-12s %-12s %-12s\n",
		"ASSET", "COIN", "SIDE", "SIZE", "ENTRY", "UPNL")
	for asset, positions := range grouped {
		for _, pos := range positions {
			fmt.Printf("%-10s %-18s %-5s %-12s %-12s %-12s\n",
				asset, pos.Coin, pos.Side, pos.Size.String(),
				pos.EntryPrice.String(), pos.UnrealizedPnl.String())
		}
	}
	return nil
}

func cmdBalance(ctx context.Context, b *broker.Broker, jsonOut bool) error {
	balances, err := b.Balances(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(balances)
	}
	fmt.Printf("perp account value: %s\n", balances.PerpAccountValue.String())
	fmt.Printf("perp margin used:   %s\n", balances.PerpMarginUsed.String())
	fmt.Printf("withdrawable:       %s\n", balances.Withdrawable.String())
	for _, bal := range balances.Spot {
		fmt.Printf("spot %-8s total %s hold %s\n", bal.Token, bal.Total.String(), bal.Hold.String())
	}
	return nil
}

func printQuote(quote *types.Quote) {
	fmt.Printf("%s %s %s via %s (%s)\n",
		quote.Side, quote.RequestedSize.String(), quote.BaseAsset,
		quote.SelectedMarket.Coin, quote.SelectedMarket.DexName)
	fmt.Printf("  avg price:  %s\n", quote.EstimatedAvgPrice.String())
	fmt.Printf("  impact:     %s bps\n", quote.EstimatedPriceImpactBps.StringFixed(3))
	fmt.Printf("  funding:    %s\n", quote.EstimatedFundingRate.String())
	if quote.Plan != nil {
		fmt.Printf("  limit:      %s (IOC)\n", quote.Plan.LimitPrice.String())
	}
	for _, alt := range quote.AlternativesConsidered {
		note := ""
		if alt.Reason != "" {
			note = "  // " + alt.Reason
		}
		fmt.Printf("  candidate %-18s score %s%s\n",
			alt.Market.Coin, alt.TotalScore.StringFixed(3), note)
	}
	for _, warning := range quote.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}

func printSplitQuote(quote *types.SplitQuote) {
	fmt.Printf("%s %s %s across %d markets\n",
		quote.Side, quote.RequestedSize.String(), quote.BaseAsset, len(quote.Allocations))
	fmt.Printf("  aggregate avg: %s (impact %s bps)\n",
		quote.AggregateAvgPrice.String(), quote.AggregateImpactBps.StringFixed(3))
	for _, alloc := range quote.Allocations {
		fmt.Printf("  %-18s size %-12s avg %-12s (%s%%)\n",
			alloc.Market.Coin, alloc.Size.String(), alloc.EstimatedAvgPrice.String(),
			alloc.Proportion.Mul(decimal.NewFromInt(100)).StringFixed(1))
	}
	for _, warning := range quote.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}

func printSplitReceipt(receipt *types.SplitExecutionReceipt) {
	if receipt.CollateralReceipt != nil {
		for _, swap := range receipt.CollateralReceipt.SwapsExecuted {
			fmt.Printf("swapped %s USDC into %s (filled %s)\n",
				swap.UsdcSpent.String(), swap.Token, swap.FilledSize.String())
		}
	}
	for _, leg := range receipt.Legs {
		status := "ok"
		if !leg.Receipt.Success {
			status = "failed: " + leg.Receipt.Error
		}
		fmt.Printf("leg %-18s size %-12s filled %-12s %s\n",
			leg.Market.Coin, leg.Size.String(), leg.Receipt.FilledSize.String(), status)
	}
}

func parseSide(s string) (types.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return types.SideBuy, nil
	case "sell":
		return types.SideSell, nil
	default:
		return "", fmt.Errorf("side must be buy or sell, got %q", s)
	}
}

func parseSize(s string) (decimal.Decimal, error) {
	size, err := decimal.NewFromString(s)
	if err != nil || !size.IsPositive() {
		return decimal.Zero, fmt.Errorf("size must be a positive number, got %q", s)
	}
	return size, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(usage string) error {
	return fmt.Errorf("usage: hyperbroker %s", usage)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`hyperbroker - prime-broker routing across fragmented perp markets

Usage:
  hyperbroker [flags] <command> [args]

Commands:
  markets <asset>                 List every market trading the asset
  book <asset> [--depth n]        Show the merged orderbook
  funding <asset>                 Show funding rates per market
  quote <asset> <buy|sell> <size> [--split]
                                  Produce a reviewable routing plan
  long <asset> <size> [--split]   Buy at the best route
  short <asset> <size> [--split]  Sell at the best route
  positions                       Show open positions grouped by asset
  balance                         Show perp and spot balances

Flags:
  --testnet            Use the testnet API
  --key <hex>          Private key (prefer --key-env)
  --key-env <name>     Env var holding the key (default HP_PRIVATE_KEY)
  --log-level <level>  debug|info|warn|error|silent
  --json               JSON output
  --no-builder-fee     Disable the builder fee`)
}
