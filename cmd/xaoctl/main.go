package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/btree-dev/xao-ai/pkg/agreement"
	"github.com/btree-dev/xao-ai/pkg/typeddata"
	"github.com/btree-dev/xao-ai/pkg/wallet"
)

const usage = "usage: xaoctl key gen --out <path> | xaoctl agreement sign --key <path> --agreement <path> --chain-id <id> --registry <wallet> --out <path> | xaoctl agreement verify --agreement <path> --envelope <path> --chain-id <id> --registry <wallet> [--expect-signer <wallet>] | xaoctl finalize sign --key <path> --venue-token-id <id> --chain-id <id> --registry <wallet> --out <path>"

func main() {
	if len(os.Args) < 3 {
		failSummary("", "", usage)
		os.Exit(2)
	}
	switch os.Args[1] + " " + os.Args[2] {
	case "key gen":
		runKeyGen(os.Args[3:])
	case "agreement sign":
		runAgreementSign(os.Args[3:])
	case "agreement verify":
		runAgreementVerify(os.Args[3:])
	case "finalize sign":
		runFinalizeSign(os.Args[3:])
	default:
		failSummary("", "", usage)
		os.Exit(2)
	}
}

func runKeyGen(args []string) {
	fs := flag.NewFlagSet("key gen", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	outPath := fs.String("out", "", "path to write the hex-encoded key seed")
	if err := fs.Parse(args); err != nil {
		failSummary("", "", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*outPath) == "" {
		failSummary("", "", "--out is required")
		os.Exit(2)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		failSummary("", "", "generate key failed: "+err.Error())
		os.Exit(1)
	}
	addr, err := wallet.FromPublicKey(pub)
	if err != nil {
		failSummary("", "", err.Error())
		os.Exit(1)
	}
	seed := hex.EncodeToString(priv.Seed())
	if err := os.WriteFile(*outPath, []byte(seed+"\n"), 0o600); err != nil {
		failSummary(addr, "", "write key failed: "+err.Error())
		os.Exit(1)
	}
	passSummary(addr, "", map[string]string{"key_path": *outPath})
}

func runAgreementSign(args []string) {
	fs := flag.NewFlagSet("agreement sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	keyPath := fs.String("key", "", "path to hex-encoded key seed")
	agreementPath := fs.String("agreement", "", "path to agreement draft json")
	chainID := fs.Uint64("chain-id", 0, "network id the attestation is bound to")
	registryAddr := fs.String("registry", "", "registry wallet the attestation is bound to")
	outPath := fs.String("out", "", "path to write the signature envelope json")
	if err := fs.Parse(args); err != nil {
		failSummary("", "", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*keyPath) == "" || strings.TrimSpace(*agreementPath) == "" || strings.TrimSpace(*outPath) == "" {
		failSummary("", "", "--key, --agreement and --out are required")
		os.Exit(2)
	}

	priv, signer, err := loadKey(*keyPath)
	if err != nil {
		failSummary("", "", err.Error())
		os.Exit(1)
	}

	var d agreement.Draft
	if err := readStrictJSON(*agreementPath, &d); err != nil {
		failSummary(signer, "", "parse agreement failed: "+err.Error())
		os.Exit(1)
	}
	if err := agreement.Check(d); err != nil {
		failSummary(signer, "", err.Error())
		os.Exit(1)
	}

	domain := typeddata.Domain{
		Name:              agreement.DomainName,
		Version:           agreement.DomainVersion,
		ChainID:           *chainID,
		VerifyingContract: strings.TrimSpace(*registryAddr),
	}
	env, err := typeddata.Sign(context.Background(), domain, agreement.Schema(), agreement.Values(d),
		typeddata.NewKeySigner(priv), time.Now())
	if err != nil {
		failSummary(signer, "", err.Error())
		os.Exit(1)
	}
	writeEnvelope(signer, env, *outPath)
}

func runAgreementVerify(args []string) {
	fs := flag.NewFlagSet("agreement verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	agreementPath := fs.String("agreement", "", "path to agreement draft json")
	envelopePath := fs.String("envelope", "", "path to signature envelope json")
	chainID := fs.Uint64("chain-id", 0, "network id the attestation is bound to")
	registryAddr := fs.String("registry", "", "registry wallet the attestation is bound to")
	expectSigner := fs.String("expect-signer", "", "wallet the envelope must recover to")
	if err := fs.Parse(args); err != nil {
		failSummary("", "", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*agreementPath) == "" || strings.TrimSpace(*envelopePath) == "" {
		failSummary("", "", "both --agreement and --envelope are required")
		os.Exit(2)
	}

	var d agreement.Draft
	if err := readStrictJSON(*agreementPath, &d); err != nil {
		failSummary("", "", "parse agreement failed: "+err.Error())
		os.Exit(1)
	}
	var env typeddata.Envelope
	if err := readStrictJSON(*envelopePath, &env); err != nil {
		failSummary("", "", "parse envelope failed: "+err.Error())
		os.Exit(1)
	}

	domain := typeddata.Domain{
		Name:              agreement.DomainName,
		Version:           agreement.DomainVersion,
		ChainID:           *chainID,
		VerifyingContract: strings.TrimSpace(*registryAddr),
	}
	signer, err := typeddata.Verify(domain, agreement.Schema(), agreement.Values(d), env)
	if err != nil {
		failSummary("", env.Digest, err.Error())
		os.Exit(1)
	}
	if *expectSigner != "" && !wallet.Equal(signer, *expectSigner) {
		failSummary(signer, env.Digest, "recovered signer does not match --expect-signer")
		os.Exit(1)
	}
	passSummary(signer, env.Digest, nil)
}

func runFinalizeSign(args []string) {
	fs := flag.NewFlagSet("finalize sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	keyPath := fs.String("key", "", "path to hex-encoded key seed")
	venueTokenID := fs.Uint64("venue-token-id", 0, "venue token to finalize against")
	chainID := fs.Uint64("chain-id", 0, "network id the attestation is bound to")
	registryAddr := fs.String("registry", "", "registry wallet the attestation is bound to")
	outPath := fs.String("out", "", "path to write the signature envelope json")
	if err := fs.Parse(args); err != nil {
		failSummary("", "", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*keyPath) == "" || *venueTokenID == 0 || strings.TrimSpace(*outPath) == "" {
		failSummary("", "", "--key, --venue-token-id and --out are required")
		os.Exit(2)
	}

	priv, signer, err := loadKey(*keyPath)
	if err != nil {
		failSummary("", "", err.Error())
		os.Exit(1)
	}

	domain := typeddata.Domain{
		Name:              agreement.DomainName,
		Version:           agreement.DomainVersion,
		ChainID:           *chainID,
		VerifyingContract: strings.TrimSpace(*registryAddr),
	}
	env, err := typeddata.Sign(context.Background(), domain,
		agreement.FinalizeSchema(), agreement.FinalizeValues(*venueTokenID, signer),
		typeddata.NewKeySigner(priv), time.Now())
	if err != nil {
		failSummary(signer, "", err.Error())
		os.Exit(1)
	}
	writeEnvelope(signer, env, *outPath)
}

func loadKey(path string) (ed25519.PrivateKey, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read key failed: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, "", fmt.Errorf("decode key failed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, "", fmt.Errorf("key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	addr, err := wallet.FromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, "", err
	}
	return priv, addr, nil
}

func readStrictJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeEnvelope(signer string, env typeddata.Envelope, outPath string) {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		failSummary(signer, env.Digest, err.Error())
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, append(b, '\n'), 0o644); err != nil {
		failSummary(signer, env.Digest, "write envelope failed: "+err.Error())
		os.Exit(1)
	}
	passSummary(signer, env.Digest, map[string]string{"envelope_path": outPath})
}

func passSummary(signer, digest string, extra map[string]string) {
	out := map[string]any{
		"protocol":      "xao-registry",
		"status":        "PASS",
		"signer":        signer,
		"digest":        digest,
		"timestamp_utc": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}

func failSummary(signer, digest, reason string) {
	b, _ := json.Marshal(map[string]any{
		"protocol":      "xao-registry",
		"status":        "FAIL",
		"signer":        signer,
		"digest":        digest,
		"reason":        reason,
		"timestamp_utc": time.Now().UTC().Format(time.RFC3339),
	})
	fmt.Println(string(b))
}
