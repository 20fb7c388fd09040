package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/ethword-go/pkg/client"
	"github.com/Layr-Labs/ethword-go/pkg/config"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/payword"
	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/wordsource"
)

func main() {
	app := &cli.App{
		Name:  "payword-client",
		Usage: "Open, pay and redeem payword channels",
		Description: `A client for payers and payees of a payword hub.

Payers:
- commit: derive a hash chain from a secret and store it locally
- open:   escrow a deposit against the chain commitment
- pay:    print the claim for the first N words, to hand to the payee

Payees:
- simulate: check a claim without redeeming it
- redeem:   submit a claim and withdraw`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hub-url",
				Usage:   "Payword hub base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{config.EnvPaywordHubURL},
			},
			&cli.StringFlag{
				Name:    "caller",
				Usage:   "Address this client acts as",
				EnvVars: []string{config.EnvPaywordCaller},
			},
			&cli.StringFlag{
				Name:  "hash-function",
				Usage: fmt.Sprintf("Hash function agreed with the hub: %v", hashing.SupportedNames()),
				Value: hashing.NameKeccak256,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "commit",
				Usage: "Derive a hash chain from a secret and write it to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret",
						Usage:    "Secret seed of the chain",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "length",
						Usage:    "Number of words",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Usage:    "Chain file to write",
						Required: true,
					},
					variantFlag(),
				},
				Action: commitCommand,
			},
			{
				Name:  "open",
				Usage: "Open a channel committed to a chain file",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "recipient",
						Usage:    "Recipient address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "deposit",
						Usage:    "Deposit in wei, decimal or 0x hex",
						Required: true,
					},
				}, chainFlags()...),
				Action: openCommand,
			},
			{
				Name:  "pay",
				Usage: "Print the claim for the first N words",
				Flags: append([]cli.Flag{
					&cli.Uint64Flag{
						Name:     "words",
						Usage:    "Words to pay for",
						Required: true,
					},
				}, chainFlags()...),
				Action: payCommand,
			},
			{
				Name:   "simulate",
				Usage:  "Check what redeeming a claim would do",
				Flags:  claimFlags(),
				Action: simulateCommand,
			},
			{
				Name:   "redeem",
				Usage:  "Redeem a claim against a channel",
				Flags:  claimFlags(),
				Action: redeemCommand,
			},
			{
				Name:  "fund",
				Usage: "Credit an account on a hub with funding enabled",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Account to credit",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Amount in wei",
						Required: true,
					},
				},
				Action: fundCommand,
			},
			{
				Name:  "balance",
				Usage: "Show an account balance",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Account to show",
						Required: true,
					},
				},
				Action: balanceCommand,
			},
			{
				Name:  "show",
				Usage: "Show one channel, or every channel when --channel is omitted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "channel",
						Usage: "Channel id",
					},
				},
				Action: showCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func variantFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "variant",
		Usage: "hashchain or merkle",
		Value: types.VariantHashChain.String(),
	}
}

func chainFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "chain-file",
			Usage:    "JSON file holding the hash chain",
			Required: true,
		},
		variantFlag(),
	}
}

func claimFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "channel",
			Usage:    "Channel id",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "claim",
			Usage:    "Claim JSON, inline or a path to a file",
			Required: true,
		},
	}
}

func hashFunc(c *cli.Context) (hashing.HashFunc, error) {
	return hashing.Parse(c.String("hash-function"))
}

func hubClient(c *cli.Context) (*client.HubClient, error) {
	caller := common.Address{}
	if raw := c.String("caller"); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid caller address %q", raw)
		}
		caller = common.HexToAddress(raw)
	}
	return client.NewHubClient(c.String("hub-url"), caller), nil
}

func parseAddressFlag(c *cli.Context, name string) (common.Address, error) {
	raw := c.String(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseChannelFlag(c *cli.Context) (common.Hash, error) {
	raw := c.String("channel")
	h := common.HexToHash(raw)
	if h == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("invalid channel id %q", raw)
	}
	return h, nil
}

func loadPayer(c *cli.Context) (*payword.Payer, error) {
	hash, err := hashFunc(c)
	if err != nil {
		return nil, err
	}
	variant, err := types.ParseVariant(c.String("variant"))
	if err != nil {
		return nil, err
	}
	src := wordsource.NewFileSource(c.String("chain-file"), hash)
	return payword.NewPayer(c.Context, hash, src, variant)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func commitCommand(c *cli.Context) error {
	hash, err := hashFunc(c)
	if err != nil {
		return err
	}
	variant, err := types.ParseVariant(c.String("variant"))
	if err != nil {
		return err
	}

	src := wordsource.NewSecretSource(hash, []byte(c.String("secret")), c.Int("length"))
	chain, err := src.FetchFullChain(c.Context)
	if err != nil {
		return fmt.Errorf("failed to build hash chain: %w", err)
	}
	if err := wordsource.WriteFile(c.String("output"), chain); err != nil {
		return err
	}

	payer, err := payword.NewPayer(c.Context, hash, src, variant)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"chain_file": c.String("output"),
		"variant":    variant.String(),
		"word_count": payer.WordCount(),
		"commitment": payer.Commitment(),
	})
}

func openCommand(c *cli.Context) error {
	payer, err := loadPayer(c)
	if err != nil {
		return err
	}
	recipient, err := parseAddressFlag(c, "recipient")
	if err != nil {
		return err
	}
	deposit, err := types.ParseAmount(c.String("deposit"))
	if err != nil {
		return err
	}
	hc, err := hubClient(c)
	if err != nil {
		return err
	}

	pub := payer.Commit(recipient, deposit)
	ch, err := hc.CreateChannel(c.Context, &types.CreateChannelRequest{
		Recipient:  pub.Recipient,
		Deposit:    pub.Deposit.Dec(),
		WordCount:  pub.WordCount,
		Commitment: pub.Commitment,
		Variant:    pub.Variant.String(),
	})
	if err != nil {
		return err
	}
	return printJSON(ch)
}

func payCommand(c *cli.Context) error {
	payer, err := loadPayer(c)
	if err != nil {
		return err
	}
	claim, err := payer.Pay(c.Uint64("words"))
	if err != nil {
		return err
	}
	msg, err := types.NewClaimMessage(claim)
	if err != nil {
		return err
	}
	return printJSON(msg)
}

func readClaim(c *cli.Context) (common.Hash, types.Claim, error) {
	id, err := parseChannelFlag(c)
	if err != nil {
		return common.Hash{}, nil, err
	}

	raw := strings.TrimSpace(c.String("claim"))
	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		data, err = os.ReadFile(raw)
		if err != nil {
			return common.Hash{}, nil, fmt.Errorf("failed to read claim file: %w", err)
		}
	}

	var msg types.ClaimMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to parse claim: %w", err)
	}
	claim, err := msg.ToClaim()
	if err != nil {
		return common.Hash{}, nil, err
	}
	return id, claim, nil
}

func simulateCommand(c *cli.Context) error {
	id, claim, err := readClaim(c)
	if err != nil {
		return err
	}
	hc, err := hubClient(c)
	if err != nil {
		return err
	}
	sim, err := hc.SimulateClose(c.Context, id, claim)
	if err != nil {
		return err
	}
	return printJSON(sim)
}

func redeemCommand(c *cli.Context) error {
	id, claim, err := readClaim(c)
	if err != nil {
		return err
	}
	hc, err := hubClient(c)
	if err != nil {
		return err
	}
	st, err := hc.CloseChannel(c.Context, id, claim)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func fundCommand(c *cli.Context) error {
	addr, err := parseAddressFlag(c, "address")
	if err != nil {
		return err
	}
	hc, err := hubClient(c)
	if err != nil {
		return err
	}
	acct, err := hc.FundAccount(c.Context, addr, c.String("amount"))
	if err != nil {
		return err
	}
	return printJSON(acct)
}

func balanceCommand(c *cli.Context) error {
	addr, err := parseAddressFlag(c, "address")
	if err != nil {
		return err
	}
	hc, err := hubClient(c)
	if err != nil {
		return err
	}
	acct, err := hc.GetAccount(c.Context, addr)
	if err != nil {
		return err
	}
	return printJSON(acct)
}

func showCommand(c *cli.Context) error {
	hc, err := hubClient(c)
	if err != nil {
		return err
	}
	if c.String("channel") == "" {
		channels, err := hc.ListChannels(c.Context)
		if err != nil {
			return err
		}
		return printJSON(channels)
	}
	id, err := parseChannelFlag(c)
	if err != nil {
		return err
	}
	ch, err := hc.GetChannel(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(ch)
}
