package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/netstatehq/zk-census/census"
	"github.com/netstatehq/zk-census/merkle"
	"github.com/netstatehq/zk-census/server"
	"github.com/netstatehq/zk-census/store"
	"github.com/netstatehq/zk-census/verifier"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := LoadConfig()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "census.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	tree, err := rebuildTree(cfg.TreeDepth, st)
	if err != nil {
		log.Fatal().Err(err).Msg("rebuild merkle tree")
	}
	root := tree.Root()
	log.Info().
		Int("depth", cfg.TreeDepth).
		Int("leaves", tree.LeafCount()).
		Str("root", census.ElementHex(&root)).
		Msg("commitment tree ready")

	svcCfg := verifier.Config{Depth: cfg.TreeDepth}

	// Missing verifying key is survivable: read endpoints keep working
	// and /verify fails fast with a ConfigError until the operator
	// supplies one. Health surfaces the gap.
	if vk, err := loadVerifyingKey(cfg.VKPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.VKPath).Msg("verifying key not loaded, starting degraded")
	} else {
		svcCfg.VerifyingKey = vk
		log.Info().Str("path", cfg.VKPath).Msg("verifying key loaded")
	}

	pub, priv, err := verifier.LoadOrCreateKeypair(cfg.SignerKeyPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SignerKeyPath).Msg("load signer keypair")
	}
	svcCfg.SignerPub = pub
	svcCfg.SignerPriv = priv
	log.Info().Hex("verifierPubkey", pub).Msg("attestation signer ready")

	svc := verifier.New(log, st, tree, svcCfg)
	h := server.NewHandler(log, svc, cfg.ScopeDuration)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	h.Routes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("census verifier listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
}

// rebuildTree replays the persisted ordered leaf sequence into a fresh
// incremental tree.
func rebuildTree(depth int, st *store.Store) (*merkle.Tree, error) {
	commits, err := st.Commitments()
	if err != nil {
		return nil, err
	}
	leaves := make([]fr.Element, len(commits))
	for i, c := range commits {
		leaves[i], err = census.ElementFromBytes(c)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
	}
	return merkle.NewFromLeaves(depth, leaves)
}

func loadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, err
	}
	return vk, nil
}
