// Command genkeys generates a development platform signing keypair.
//
// The private key signs transaction payloads in tests and local stream
// stubs; the public key is what agentd loads via AGENT_PLATFORM_KEY_PATH.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"log"
	"os"
	"path/filepath"
)

func main() {
	dir := "configs"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Failed to create key directory: %v", err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatal(err)
	}

	privDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		log.Fatal(err)
	}
	pemEncode(filepath.Join(dir, "platform_signing.pem"), "EC PRIVATE KEY", privDER)

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		log.Fatal(err)
	}
	pemEncode(filepath.Join(dir, "platform.pem"), "PUBLIC KEY", pubDER)

	log.Printf("Platform signing keypair written to %s/", dir)
}

func pemEncode(path, typeName string, bytes []byte) {
	out, err := os.Create(path)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	if err := pem.Encode(out, &pem.Block{Type: typeName, Bytes: bytes}); err != nil {
		log.Fatal(err)
	}
}
