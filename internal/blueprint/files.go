package blueprint

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Sibling files with fixed schemas. Loaders return the zero value when the
// file is absent: a blueprint only ships the files it needs.

type CompanySpec struct {
	CompanyName     string `yaml:"company_name"`
	Abbr            string `yaml:"abbr"`
	DefaultCurrency string `yaml:"default_currency"`
}

type CompaniesFile struct {
	Companies []CompanySpec `yaml:"companies"`
}

type BrandSpec struct {
	Brand string `yaml:"brand"`
}

type BrandsFile struct {
	Brands []BrandSpec `yaml:"brands"`
}

type RoleSpec struct {
	// Role names the role for the simple upsert path; Name + CloneFrom drive
	// the permission-cloning path.
	Role       string     `yaml:"role"`
	Name       string     `yaml:"name"`
	CloneFrom  StringList `yaml:"clone_from"`
	DeskAccess FlexBool   `yaml:"desk_access"`
}

type RolesOptions struct {
	UnionOnly FlexBool `yaml:"union_only"`
}

type RolesFile struct {
	Roles   []RoleSpec   `yaml:"roles"`
	Options RolesOptions `yaml:"options"`
}

type RoleProfileSpec struct {
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

type RoleProfilesFile struct {
	RoleProfiles []RoleProfileSpec `yaml:"role_profiles"`
}

type UserDefaults struct {
	Language string `yaml:"language"`
	TimeZone string `yaml:"time_zone"`
}

type UserSpec struct {
	Email         string     `yaml:"email"`
	FullName      string     `yaml:"full_name"`
	Language      string     `yaml:"language"`
	TimeZone      string     `yaml:"time_zone"`
	IsDeskUser    FlexBool   `yaml:"is_desk_user"`
	RoleProfile   string     `yaml:"role_profile"`
	RoleProfiles  StringList `yaml:"role_profiles"`
	Roles         []string   `yaml:"roles"`
	Company       string     `yaml:"company"`
	BrandScope    StringList `yaml:"brand_scope"`
	ModuleProfile string     `yaml:"module_profile"`
}

type UsersFile struct {
	Defaults UserDefaults `yaml:"defaults"`
	Users    []UserSpec   `yaml:"users"`
}

type LetterheadSpec struct {
	Name       string `yaml:"name"`
	Source     string `yaml:"source"`
	Content    string `yaml:"content"`
	Image      string `yaml:"image"`
	SourcePath string `yaml:"source_path"`
}

type LetterheadsFile struct {
	Letterheads      []LetterheadSpec  `yaml:"letterheads"`
	PreferredDefault string            `yaml:"preferred_default"`
	KeepEnabled      []string          `yaml:"keep_enabled"`
	CompanyDefaults  map[string]string `yaml:"company_defaults"`
}

type ModuleProfileSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Extends     string   `yaml:"extends"`
	Modules     []string `yaml:"modules"`
	Workspaces  []string `yaml:"workspaces"`
}

type ModuleProfilesFile struct {
	ModuleProfiles []ModuleProfileSpec `yaml:"module_profiles"`
}

func (l *Loader) Companies(slug string) (CompaniesFile, error) {
	var f CompaniesFile
	err := l.readSibling(slug, "companies.yaml", &f)
	return f, err
}

func (l *Loader) Brands(slug string) (BrandsFile, error) {
	var f BrandsFile
	err := l.readSibling(slug, "brands.yaml", &f)
	return f, err
}

func (l *Loader) Roles(slug string) (RolesFile, error) {
	var f RolesFile
	err := l.readSibling(slug, "roles.yaml", &f)
	return f, err
}

func (l *Loader) RoleProfiles(slug string) (RoleProfilesFile, error) {
	var f RoleProfilesFile
	err := l.readSibling(slug, "role_profiles.yaml", &f)
	return f, err
}

func (l *Loader) Users(slug string) (UsersFile, error) {
	var f UsersFile
	err := l.readSibling(slug, "users.yaml", &f)
	return f, err
}

func (l *Loader) Letterheads(slug string) (LetterheadsFile, error) {
	var f LetterheadsFile
	err := l.readSibling(slug, "letterheads.yaml", &f)
	return f, err
}

func (l *Loader) ModuleProfiles(slug string) (ModuleProfilesFile, error) {
	var f ModuleProfilesFile
	err := l.readSibling(slug, "module_profiles.yaml", &f)
	return f, err
}

func (l *Loader) readSibling(slug, filename string, out any) error {
	path := filepath.Join(l.Dir(slug), filename)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
