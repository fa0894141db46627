// Package hr exposes a conventional relational HR dataset (departments,
// employees, projects, salary history) through read queries plus schema
// init and seeding. There is no transformation logic here; it is a plain
// query layer over PostgreSQL.
package hr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the HR PostgreSQL database.
type DB struct {
	db *sql.DB
}

// Open opens the HR database using the pgx stdlib driver.
func Open(connStr string) (*DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open hr database: %w", err)
	}
	return &DB{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *DB {
	return &DB{db: db}
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

var schemaStatements = []string{
	`DROP TABLE IF EXISTS salary_history CASCADE`,
	`DROP TABLE IF EXISTS employee_project CASCADE`,
	`DROP TABLE IF EXISTS project CASCADE`,
	`DROP TABLE IF EXISTS employee CASCADE`,
	`DROP TABLE IF EXISTS department CASCADE`,

	`CREATE TABLE department (
		id       SERIAL PRIMARY KEY,
		name     TEXT NOT NULL,
		location TEXT
	)`,
	`CREATE TABLE employee (
		id            SERIAL PRIMARY KEY,
		first_name    TEXT NOT NULL,
		last_name     TEXT NOT NULL,
		email         TEXT UNIQUE NOT NULL,
		salary        NUMERIC(10,2),
		hire_date     DATE,
		department_id INTEGER REFERENCES department(id)
	)`,
	`CREATE TABLE project (
		id            SERIAL PRIMARY KEY,
		name          TEXT NOT NULL,
		budget        NUMERIC(12,2),
		department_id INTEGER REFERENCES department(id)
	)`,
	`CREATE TABLE employee_project (
		employee_id INTEGER REFERENCES employee(id),
		project_id  INTEGER REFERENCES project(id),
		role        TEXT,
		PRIMARY KEY (employee_id, project_id)
	)`,
	`CREATE TABLE salary_history (
		id          SERIAL PRIMARY KEY,
		employee_id INTEGER REFERENCES employee(id),
		change_date DATE NOT NULL,
		old_salary  NUMERIC(10,2),
		new_salary  NUMERIC(10,2),
		reason      TEXT
	)`,

	`CREATE INDEX idx_employee_department ON employee(department_id)`,
	`CREATE INDEX idx_project_department ON project(department_id)`,
	`CREATE INDEX idx_salary_history_employee ON salary_history(employee_id)`,
}

var seedStatements = []string{
	`INSERT INTO department (name, location) VALUES
		('Engineering', 'Barcelona'),
		('Data', 'Madrid'),
		('Operations', 'Lisbon')`,

	`INSERT INTO employee (first_name, last_name, email, salary, hire_date, department_id) VALUES
		('Ada', 'Moreno', 'ada.moreno@example.com', 72000, '2019-03-11', 1),
		('Bruno', 'Silva', 'bruno.silva@example.com', 65000, '2020-07-01', 1),
		('Carla', 'Fuentes', 'carla.fuentes@example.com', 81000, '2018-01-22', 2),
		('Diego', 'Navarro', 'diego.navarro@example.com', 58000, '2021-10-04', 2),
		('Elena', 'Costa', 'elena.costa@example.com', 54000, '2022-02-14', 3)`,

	`INSERT INTO project (name, budget, department_id) VALUES
		('Ingestion Revamp', 250000, 1),
		('Warehouse Migration', 400000, 2),
		('Ground Ops Portal', 120000, 3)`,

	`INSERT INTO employee_project (employee_id, project_id, role) VALUES
		(1, 1, 'lead'),
		(2, 1, 'engineer'),
		(3, 2, 'lead'),
		(4, 2, 'analyst'),
		(5, 3, 'coordinator')`,

	`INSERT INTO salary_history (employee_id, change_date, old_salary, new_salary, reason) VALUES
		(1, '2021-01-01', 64000, 68000, 'annual review'),
		(1, '2023-01-01', 68000, 72000, 'promotion'),
		(3, '2020-06-01', 74000, 81000, 'market adjustment')`,
}

// InitSchema drops and recreates all HR tables with their indexes.
func (d *DB) InitSchema(ctx context.Context) error {
	return d.execAll(ctx, schemaStatements, "init schema")
}

// Seed populates the HR tables with sample data.
func (d *DB) Seed(ctx context.Context) error {
	return d.execAll(ctx, seedStatements, "seed")
}

func (d *DB) execAll(ctx context.Context, statements []string, what string) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// Department is one department row.
type Department struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Location *string `json:"location"`
}

// ListDepartments returns all departments ordered by id.
func (d *DB) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, location FROM department ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []Department{}
	for rows.Next() {
		var dep Department
		var loc sql.NullString
		if err := rows.Scan(&dep.ID, &dep.Name, &loc); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		if loc.Valid {
			dep.Location = &loc.String
		}
		result = append(result, dep)
	}
	return result, rows.Err()
}

// Employee is one employee row, optionally joined with its department name.
type Employee struct {
	ID             int      `json:"id"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Email          string   `json:"email"`
	Salary         *float64 `json:"salary"`
	HireDate       string   `json:"hire_date,omitempty"`
	DepartmentName *string  `json:"department_name,omitempty"`
}

// ListEmployees returns one page of employees with their department name.
// Pages are 1-indexed.
func (d *DB) ListEmployees(ctx context.Context, page, perPage int) ([]Employee, error) {
	offset := (page - 1) * perPage
	rows, err := d.db.QueryContext(ctx, `
		SELECT e.id, e.first_name, e.last_name, e.email, e.salary, d.name AS department_name
		FROM employee e
		LEFT JOIN department d ON e.department_id = d.id
		ORDER BY e.id
		LIMIT $1 OFFSET $2
	`, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []Employee{}
	for rows.Next() {
		var e Employee
		var salary sql.NullFloat64
		var dept sql.NullString
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName, &e.Email, &salary, &dept); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		if salary.Valid {
			e.Salary = &salary.Float64
		}
		if dept.Valid {
			e.DepartmentName = &dept.String
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DepartmentEmployees returns all employees of one department ordered by id.
func (d *DB) DepartmentEmployees(ctx context.Context, deptID int) ([]Employee, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, email, salary, hire_date
		FROM employee
		WHERE department_id = $1
		ORDER BY id
	`, deptID)
	if err != nil {
		return nil, fmt.Errorf("department employees: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []Employee{}
	for rows.Next() {
		var e Employee
		var salary sql.NullFloat64
		var hireDate sql.NullTime
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName, &e.Email, &salary, &hireDate); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		if salary.Valid {
			e.Salary = &salary.Float64
		}
		if hireDate.Valid {
			e.HireDate = hireDate.Time.Format("2006-01-02")
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DepartmentStats holds KPI aggregates for one department.
type DepartmentStats struct {
	DepartmentName string   `json:"department_name"`
	EmployeeCount  int      `json:"employee_count"`
	AvgSalary      *float64 `json:"avg_salary"`
	ProjectCount   int      `json:"project_count"`
}

// Stats returns the KPI aggregates for one department, or nil when the
// department does not exist.
func (d *DB) Stats(ctx context.Context, deptID int) (*DepartmentStats, error) {
	var s DepartmentStats
	var avg sql.NullFloat64
	err := d.db.QueryRowContext(ctx, `
		SELECT d.name AS department_name,
		       COUNT(DISTINCT e.id) AS employee_count,
		       AVG(e.salary) AS avg_salary,
		       COUNT(DISTINCT p.id) AS project_count
		FROM department d
		LEFT JOIN employee e ON e.department_id = d.id
		LEFT JOIN project p ON p.department_id = d.id
		WHERE d.id = $1
		GROUP BY d.id, d.name
	`, deptID).Scan(&s.DepartmentName, &s.EmployeeCount, &avg, &s.ProjectCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("department stats: %w", err)
	}
	if avg.Valid {
		s.AvgSalary = &avg.Float64
	}
	return &s, nil
}

// SalaryChange is one salary history entry.
type SalaryChange struct {
	ChangeDate string   `json:"change_date"`
	OldSalary  *float64 `json:"old_salary"`
	NewSalary  *float64 `json:"new_salary"`
	Reason     *string  `json:"reason"`
}

// SalaryHistory returns an employee's salary changes ordered by date.
func (d *DB) SalaryHistory(ctx context.Context, employeeID int) ([]SalaryChange, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT change_date, old_salary, new_salary, reason
		FROM salary_history
		WHERE employee_id = $1
		ORDER BY change_date
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("salary history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []SalaryChange{}
	for rows.Next() {
		var c SalaryChange
		var changeDate time.Time
		var oldSalary, newSalary sql.NullFloat64
		var reason sql.NullString
		if err := rows.Scan(&changeDate, &oldSalary, &newSalary, &reason); err != nil {
			return nil, fmt.Errorf("scan salary change: %w", err)
		}
		c.ChangeDate = changeDate.Format("2006-01-02")
		if oldSalary.Valid {
			c.OldSalary = &oldSalary.Float64
		}
		if newSalary.Valid {
			c.NewSalary = &newSalary.Float64
		}
		if reason.Valid {
			c.Reason = &reason.String
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
