package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"kata-board/domain"
	"kata-board/storage"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	projectsTable := os.Getenv("PROJECTS_TABLE")
	usersTable := os.Getenv("USERS_TABLE")
	changesQueue := os.Getenv("CHANGES_QUEUE")

	ctx := context.Background()

	if err := createTables(ctx, connStr, []string{projectsTable, usersTable}); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := createQueues(ctx, connStr, []string{changesQueue}); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	if seed, ok := adminSeedFromEnv(); ok {
		store, err := storage.New(connStr, projectsTable, usersTable, changesQueue)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if err := seedAdmin(ctx, domain.NewUserService(store, log.StandardLogger()), seed); err != nil {
			log.Fatalf("seed admin: %v", err)
		}
	}

	log.Info("storage init complete")
}

// adminSeedFromEnv reads the optional first ADMIN account. Without it nobody
// could create users through the API.
func adminSeedFromEnv() (domain.NewUser, bool) {
	u := domain.NewUser{
		CC:       os.Getenv("ADMIN_CC"),
		Email:    os.Getenv("ADMIN_EMAIL"),
		UserName: os.Getenv("ADMIN_NAME"),
		Role:     string(domain.RoleAdmin),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}
	if u.CC == "" || u.Password == "" {
		return domain.NewUser{}, false
	}
	if u.UserName == "" {
		u.UserName = "Administrator"
	}
	return u, true
}

type userCreator interface {
	Create(ctx context.Context, actor domain.Actor, nu domain.NewUser) (domain.User, error)
}

func seedAdmin(ctx context.Context, users userCreator, seed domain.NewUser) error {
	_, err := users.Create(ctx, domain.Actor{CC: seed.CC, Role: string(domain.RoleAdmin)}, seed)
	if errors.Is(err, domain.ErrUserExists) {
		log.WithField("user", seed.CC).Info("admin already present")
		return nil
	}
	if err != nil {
		return err
	}
	log.WithField("user", seed.CC).Info("admin created")
	return nil
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		c := svc.NewClient(name)
		_, err := c.CreateTable(ctx, nil)
		if err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
			return err
		}
		log.WithField("table", name).Debug("table ready")
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		if err != nil && !alreadyExists(err, queueAlreadyExists) {
			return err
		}
		log.WithField("queue", name).Debug("queue ready")
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
