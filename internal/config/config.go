package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/joho/godotenv"
)

// VaultClient provides secure secret management via HashiCorp Vault.
type VaultClient struct {
	client     *api.Client
	mountPath  string
	secretPath string
	logger     *log.Logger
}

var vaultClient *VaultClient

// InitializeVaultClient sets up a HashiCorp Vault client for secret management.
func InitializeVaultClient(vaultAddr, token, mountPath, secretPath string) error {
	cfg := &api.Config{Address: vaultAddr}

	client, err := api.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	if _, err := client.Sys().Health(); err != nil {
		return fmt.Errorf("failed to connect to Vault: %w", err)
	}

	vaultClient = &VaultClient{
		client:     client,
		mountPath:  mountPath,
		secretPath: secretPath,
		logger:     log.New(os.Stdout, "[VAULT] ", log.Ldate|log.Ltime|log.LUTC),
	}

	vaultClient.logger.Printf("Vault client initialized - Address: %s, Mount: %s, Path: %s",
		vaultAddr, mountPath, secretPath)

	return nil
}

// GetSecretFromVault retrieves a secret from HashiCorp Vault.
func GetSecretFromVault(key string) (string, error) {
	if vaultClient == nil {
		return "", fmt.Errorf("vault client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secret, err := vaultClient.client.KVv2(vaultClient.mountPath).Get(ctx, vaultClient.secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found in Vault path: %s/%s", vaultClient.mountPath, vaultClient.secretPath)
	}

	value, ok := secret.Data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key '%s' not found or not a string", key)
	}

	return value, nil
}

// loadEnvFiles loads environment files in the correct order.
func loadEnvFiles() {
	_ = godotenv.Load()

	if env := os.Getenv("NODE_ENV"); env != "" {
		_ = godotenv.Load(".env." + env)
	}

	_ = godotenv.Load(".env.local")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
