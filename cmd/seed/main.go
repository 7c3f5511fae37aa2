package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/auth"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/group"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/infra/logger"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/repository/mysql"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

const demoGroupID = 1

// 本地联调数据：一个管理员、一个导师、两个学员组成一个小组，并打印各自的令牌
func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	tokenTTL := pflag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed tokens")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.Init(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	db := mysql.Init(&cfg.MySQL)
	users := mysql.NewUserRepository(db)

	seeds := []*user.User{
		{Email: "admin@example.com", FirstName: "Ada", LastName: "Admin", Role: user.RoleAdmin, IsActive: true},
		{Email: "mentor@example.com", FirstName: "Morgan", LastName: "Mentor", Role: user.RoleMentor, IsActive: true},
		{Email: "mentee1@example.com", FirstName: "Sam", LastName: "Mentee", Role: user.RoleMentee, IsActive: true},
		{Email: "mentee2@example.com", FirstName: "Alex", LastName: "Mentee", Role: user.RoleMentee, IsActive: true},
	}
	for i, u := range seeds {
		existing, err := users.GetByEmail(ctx, u.Email)
		switch {
		case err == nil:
			seeds[i] = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := users.Create(ctx, u); err != nil {
				log.Fatal("create user failed", zap.String("email", u.Email), zap.Error(err))
			}
		default:
			log.Fatal("lookup user failed", zap.String("email", u.Email), zap.Error(err))
		}
	}
	mentor, mentees := seeds[1], seeds[2:]

	members := make([]group.Member, 0, 3)
	members = append(members, group.Member{GroupID: demoGroupID, UserID: mentor.ID})
	menteeIDs := make([]int64, 0, len(mentees))
	for _, m := range mentees {
		members = append(members, group.Member{GroupID: demoGroupID, UserID: m.ID})
		menteeIDs = append(menteeIDs, m.ID)
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error; err != nil {
		log.Fatal("create group members failed", zap.Error(err))
	}

	contacts := service.NewContactService(mysql.NewContactRepository(db), users, nil, nil)
	if err := contacts.AutoPopulateGroupContacts(ctx, mentor.ID, menteeIDs); err != nil {
		log.Fatal("populate group contacts failed", zap.Error(err))
	}

	fmt.Println("seed 完成，令牌如下（Authorization: Bearer <token> 或 /ws?token=<token>）：")
	for _, u := range seeds {
		token, err := auth.GenerateToken(&cfg.JWT, u.ID, u.Email, u.Role, *tokenTTL)
		if err != nil {
			log.Fatal("generate token failed", zap.Error(err))
		}
		fmt.Printf("%-8s id=%-4d %-22s %s\n", u.Role, u.ID, u.Email, token)
	}
}
