package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"studio/backend/internal/auth"
	jwtpkg "studio/backend/internal/auth/jwt"
	"studio/backend/internal/bootstrap"
	"studio/backend/internal/config"
	"studio/backend/internal/domain"
	"studio/backend/internal/logger"
	"studio/backend/internal/storage"
)

func main() {
	username := flag.String("username", "", "登录用户名")
	password := flag.String("password", "", "登录密码，至少 8 位")
	name := flag.String("name", "", "显示名称")
	role := flag.String("role", string(domain.RoleAdmin), "角色: admin 或 editor")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Println("Usage: create-admin -username=<username> -password=<password> [-name=<name>] [-role=admin|editor]")
		os.Exit(1)
	}

	// 加载配置，使用与服务端相同的存储
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "memory" {
		fmt.Println("Warning: database.type is memory, the user will be lost when this command exits.")
	}

	log := logger.NewDevelopmentLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	authService := auth.NewService(store, jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry))
	user, err := authService.CreateUser(ctx, auth.NewUserInput{
		Name:     *name,
		Username: *username,
		Password: *password,
		Role:     domain.UserRole(*role),
	})
	if err != nil {
		if errors.Is(err, storage.ErrUsernameExists) {
			fmt.Printf("User %q already exists\n", *username)
		} else {
			fmt.Printf("Failed to create user: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("✓ User created successfully!\n")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Name:     %s\n", user.Name)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Role:     %s\n", user.Role)
}
