package seeds

import (
	"log"

	"github.com/autocare360/autocare-backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "AutoCare360!"

// Account describes a seeded login.
type Account struct {
	Name  string
	Email string
	Role  models.Role
}

var Accounts = []Account{
	{Name: "Service Admin", Email: "admin@autocare360.dev", Role: models.RoleAdmin},
	{Name: "Alice Perera", Email: "alice@autocare360.dev", Role: models.RoleEmployee},
	{Name: "Bob Silva", Email: "bob@autocare360.dev", Role: models.RoleEmployee},
	{Name: "Carla Mendes", Email: "carla@example.com", Role: models.RoleCustomer},
	{Name: "Dinesh Kumar", Email: "dinesh@example.com", Role: models.RoleCustomer},
}

// GetOrCreateUser returns the user with a's email, creating it if missing.
func GetOrCreateUser(db *gorm.DB, a Account) (models.User, error) {
	var user models.User
	if err := db.Where("email = ?", a.Email).First(&user).Error; err == nil {
		log.Printf("   ✅ %s found: %s", a.Role, user.Email)
		return user, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	user = models.User{
		Name:     a.Name,
		Email:    a.Email,
		Role:     a.Role,
		Password: string(hash),
		Image:    "https://api.dicebear.com/7.x/initials/svg?seed=" + a.Name,
	}
	if err := db.Create(&user).Error; err != nil {
		return models.User{}, err
	}
	log.Printf("   ✅ %s created: %s", a.Role, user.Email)
	return user, nil
}

// SeedUsers ensures every account in Accounts exists, keyed by email.
func SeedUsers(db *gorm.DB) (map[string]models.User, error) {
	log.Println("👤 Seeding Users...")
	users := make(map[string]models.User, len(Accounts))
	for _, a := range Accounts {
		u, err := GetOrCreateUser(db, a)
		if err != nil {
			return nil, err
		}
		users[a.Email] = u
	}
	return users, nil
}
