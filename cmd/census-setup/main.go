// census-setup compiles the census circuit at the configured depth and
// writes the Groth16 proving and verifying keys. The verifying key file
// is what censusd loads; the proving key goes to whoever builds client
// proofs. This is a development setup, not a trusted ceremony.
package main

import (
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/netstatehq/zk-census/circuit"
	"github.com/netstatehq/zk-census/merkle"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	depth := flag.Int("depth", merkle.DefaultDepth, "merkle tree depth")
	vkPath := flag.String("vk", "verification_key.bin", "verifying key output path")
	pkPath := flag.String("pk", "proving_key.bin", "proving key output path")
	flag.Parse()

	log.Info().Int("depth", *depth).Msg("compiling census circuit")
	_, pk, vk, err := circuit.Compile(*depth)
	if err != nil {
		log.Fatal().Err(err).Msg("compile circuit")
	}

	writeKey(log, *pkPath, pk)
	writeKey(log, *vkPath, vk)
}

func writeKey(log zerolog.Logger, path string, key io.WriterTo) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("create key file")
	}
	defer f.Close()
	if _, err := key.WriteTo(f); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("write key")
	}
	log.Info().Str("path", path).Msg("key written")
}
