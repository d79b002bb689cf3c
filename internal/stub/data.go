// ABOUTME: Seeded accounts, schemas, canned tables, and analysis for the stub API
// ABOUTME: Everything is deterministic so demos and tests see stable data

package stub

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
)

// Account is a stub user record. The real service keeps these in Postgres;
// here they live in memory and reset on restart.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	Schema       string
	AdminSchema  string
	CreatedAt    string
}

// Schemas handed to the seeded accounts. The DDL is what the generator
// extracts table names from, so prompts mentioning these tables resolve.
const (
	carsSchema = `CREATE TABLE cars (id INT PRIMARY KEY, make TEXT, model TEXT, year INT, price INT);
CREATE TABLE owners (id INT PRIMARY KEY, name TEXT, car_id INT REFERENCES cars(id));`

	studentsSchema = `CREATE TABLE students (id INT PRIMARY KEY, name TEXT, grade TEXT, enrolled_at DATE);
CREATE TABLE courses (id INT PRIMARY KEY, title TEXT, credits INT);`

	companySchema = carsSchema + "\n" + studentsSchema + `
CREATE TABLE sales (id INT PRIMARY KEY, car_id INT REFERENCES cars(id), amount INT, sold_at DATE);`
)

// seedAccounts builds the initial user set. Passwords are bcrypt-hashed at
// startup; the admin account carries a wider admin schema like the real
// service supports.
func seedAccounts(now time.Time) []*Account {
	created := isoTimestamp(now)
	return []*Account{
		{
			ID:           1,
			Username:     "admin",
			PasswordHash: mustHash("admin123"),
			Role:         auth.RoleAdmin,
			Schema:       carsSchema,
			AdminSchema:  companySchema,
			CreatedAt:    created,
		},
		{
			ID:           2,
			Username:     "demo",
			PasswordHash: mustHash("demo123"),
			Role:         auth.RoleUser,
			Schema:       carsSchema,
			CreatedAt:    created,
		},
		{
			ID:           3,
			Username:     "analyst",
			PasswordHash: mustHash("analyst123"),
			Role:         auth.RoleUser,
			Schema:       studentsSchema,
			CreatedAt:    created,
		},
	}
}

func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

// isoTimestamp formats a timestamp the way the real service does.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format(backend.TimeFormat)
}

// tableRows returns the canned result set for a known table, or nil.
func tableRows(name string) []backend.Row {
	switch name {
	case "cars":
		return carRows()
	case "owners":
		return ownerRows()
	case "students":
		return studentRows()
	case "courses":
		return courseRows()
	case "sales":
		return salesRows()
	}
	return nil
}

// fallbackRows is served when a query references no known table.
func fallbackRows() []backend.Row {
	return []backend.Row{
		{"id": 1, "name": "Alice"},
		{"id": 2, "name": "Bob"},
	}
}

func carRows() []backend.Row {
	return []backend.Row{
		{"id": 1, "make": "Toyota", "model": "Corolla", "year": 2021, "price": 21500},
		{"id": 2, "make": "Toyota", "model": "RAV4", "year": 2023, "price": 32400},
		{"id": 3, "make": "Honda", "model": "Civic", "year": 2020, "price": 19800},
		{"id": 4, "make": "Ford", "model": "F-150", "year": 2022, "price": 41900},
		{"id": 5, "make": "Tesla", "model": "Model 3", "year": 2024, "price": 42990},
		{"id": 6, "make": "Volkswagen", "model": "Golf", "year": 2019, "price": 16500},
		{"id": 7, "make": "Subaru", "model": "Outback", "year": 2023, "price": 29700},
		{"id": 8, "make": "Hyundai", "model": "Elantra", "year": 2021, "price": 18300},
	}
}

func ownerRows() []backend.Row {
	return []backend.Row{
		{"id": 1, "name": "Dana Whitfield", "car_id": 2},
		{"id": 2, "name": "Marcus Lee", "car_id": 5},
		{"id": 3, "name": "Priya Nair", "car_id": 1},
		{"id": 4, "name": "Tom Okafor", "car_id": 4},
		{"id": 5, "name": "Ines Fournier", "car_id": 7},
	}
}

func studentRows() []backend.Row {
	return []backend.Row{
		{"id": 1, "name": "Sam Carter", "grade": "A", "enrolled_at": "2024-09-01"},
		{"id": 2, "name": "Leah Kim", "grade": "B+", "enrolled_at": "2024-09-01"},
		{"id": 3, "name": "Diego Ruiz", "grade": "A-", "enrolled_at": "2025-01-15"},
		{"id": 4, "name": "Nora Haddad", "grade": "B", "enrolled_at": "2025-01-15"},
		{"id": 5, "name": "Felix Braun", "grade": "C+", "enrolled_at": "2025-01-15"},
		{"id": 6, "name": "Ada Osei", "grade": "A", "enrolled_at": "2025-08-20"},
	}
}

func courseRows() []backend.Row {
	return []backend.Row{
		{"id": 1, "title": "Databases", "credits": 6},
		{"id": 2, "title": "Statistics", "credits": 4},
		{"id": 3, "title": "Linear Algebra", "credits": 5},
		{"id": 4, "title": "Technical Writing", "credits": 2},
	}
}

// salesRows is deliberately larger than the default row cap so "show me all
// sales" exercises the too-many-rows path end to end.
func salesRows() []backend.Row {
	rows := make([]backend.Row, 0, 500)
	for i := 1; i <= 500; i++ {
		rows = append(rows, backend.Row{
			"id":      i,
			"car_id":  (i % 8) + 1,
			"amount":  15000 + (i*137)%20000,
			"sold_at": fmt.Sprintf("2025-%02d-%02d", (i%12)+1, (i%28)+1),
		})
	}
	return rows
}

// seedAnalysis is the canned column report. The summary gets usage counts
// appended at serve time.
func seedAnalysis() *backend.ColumnAnalysis {
	return &backend.ColumnAnalysis{
		UsefulTables:        []string{"cars", "sales", "students"},
		UselessTables:       []string{"courses"},
		UselessColumns:      []string{"owners.car_id", "students.enrolled_at", "courses.credits"},
		RecommendedIndexes:  []string{"CREATE INDEX idx_sales_car_id ON sales (car_id);"},
		SuggestedDropTables: []string{"courses"},
		Summary:             "Query traffic concentrates on cars and sales; course data is never asked about.",
	}
}
