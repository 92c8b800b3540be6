// tradewatch-secrets imports a .env file into the badger secret
// store so credentials never sit in the config file. The server reads
// keys back under the same env/ prefix.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peter-wins/tradewatch/pkg/secretstore"
)

func main() {
	var (
		inPath = flag.String("in", ".env", "input .env file path")
		dbPath = flag.String("store", getenv("TRADEWATCH_SECRETS_PATH", "data/secrets"), "secret store path")
		rawKey = flag.String("key", getenv("TRADEWATCH_SECRET_KEY", ""), "encryption key (32 bytes base64/hex, optional)")
		prefix = flag.String("prefix", "env/", "key prefix inside the store")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*rawKey)
	if err != nil {
		fatal(err)
	}

	kv, err := parseDotEnvFile(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written := 0
	for k, v := range kv {
		if err := ss.SetString((*prefix)+k, v); err != nil {
			fatal(err)
		}
		written++
	}
	fmt.Fprintf(os.Stderr, "imported %d entries into %s (prefix %s)\n", written, *dbPath, *prefix)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}

func parseDotEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range strings.Split(string(b), "\n") {
		l := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		eq := strings.Index(l, "=")
		if eq <= 0 {
			continue
		}
		k := strings.TrimSpace(l[:eq])
		v := strings.TrimSpace(l[eq+1:])
		v = strings.Trim(v, `"'`)
		if k != "" {
			out[k] = v
		}
	}
	return out, nil
}
