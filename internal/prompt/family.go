package prompt

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Family holds the constants a model family was trained with: the
// beginning-of-sequence id, the image placeholder sentinel and the exact
// marker strings. Marker strings are byte-exact.
type Family struct {
	Name string

	BOSID int
	// ImageTokenID fills each image patch slot. It must lie outside the
	// vocabulary, so it is required to be negative.
	ImageTokenID int

	Separator  string
	BeginImage string
	EndImage   string

	UserTurn  string
	ModelTurn string
	EndOfTurn string
}

// Gemma returns the Gemma family defaults.
func Gemma() Family {
	return Family{
		Name:         "gemma",
		BOSID:        2,
		ImageTokenID: -2,
		Separator:    "\n",
		BeginImage:   "\n\n<start_of_image>",
		EndImage:     "<end_of_image>\n\n",
		UserTurn:     "<start_of_turn>user\n",
		ModelTurn:    "<start_of_turn>model\n",
		EndOfTurn:    "<end_of_turn>\n",
	}
}

// Validate checks the constraints the wrapper relies on.
func (f Family) Validate() error {
	var errs []error
	if strings.TrimSpace(f.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if f.BOSID < 0 {
		errs = append(errs, fmt.Errorf("bos_id %d must be a vocabulary id", f.BOSID))
	}
	if f.ImageTokenID >= 0 {
		errs = append(errs, fmt.Errorf("image_token_id %d must be negative", f.ImageTokenID))
	}
	if f.Separator == "" {
		errs = append(errs, errors.New("separator is required"))
	}
	if f.BeginImage == "" || f.EndImage == "" {
		errs = append(errs, errors.New("begin_image and end_image are required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: family %q: %w", ErrInvalidArgument, f.Name, err)
	}
	return nil
}

// familyOverride is the YAML form of a Family. Fields are pointers so an
// entry only replaces what it sets.
type familyOverride struct {
	Name         string  `yaml:"name"`
	Base         string  `yaml:"base"`
	BOSID        *int    `yaml:"bos_id"`
	ImageTokenID *int    `yaml:"image_token_id"`
	Separator    *string `yaml:"separator"`
	BeginImage   *string `yaml:"begin_image"`
	EndImage     *string `yaml:"end_image"`
	UserTurn     *string `yaml:"user_turn"`
	ModelTurn    *string `yaml:"model_turn"`
	EndOfTurn    *string `yaml:"end_of_turn"`
}

func (o familyOverride) apply(f Family) Family {
	f.Name = o.Name
	setInt(&f.BOSID, o.BOSID)
	setInt(&f.ImageTokenID, o.ImageTokenID)
	setString(&f.Separator, o.Separator)
	setString(&f.BeginImage, o.BeginImage)
	setString(&f.EndImage, o.EndImage)
	setString(&f.UserTurn, o.UserTurn)
	setString(&f.ModelTurn, o.ModelTurn)
	setString(&f.EndOfTurn, o.EndOfTurn)
	return f
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Registry maps family names to their constants. It is filled at startup
// and only read afterwards.
type Registry struct {
	families map[string]Family
}

// NewRegistry returns a registry holding the Gemma defaults.
func NewRegistry() *Registry {
	g := Gemma()
	return &Registry{families: map[string]Family{g.Name: g}}
}

// Register validates and adds f, replacing a family of the same name.
func (r *Registry) Register(f Family) error {
	if err := f.Validate(); err != nil {
		return err
	}
	r.families[f.Name] = f
	return nil
}

// Lookup returns the family registered under name.
func (r *Registry) Lookup(name string) (Family, error) {
	if name == "" {
		name = Gemma().Name
	}
	f, ok := r.families[name]
	if !ok {
		return Family{}, fmt.Errorf("%w: unknown model family %q (known: %s)", ErrInvalidArgument, name, strings.Join(r.Names(), ", "))
	}
	return f, nil
}

// Names lists the registered families in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFamilies reads a YAML document of the form
//
//	families:
//	  - name: gemma2
//	    base: gemma
//	    bos_id: 2
//
// and registers each entry. An entry starts from its base family (or the
// existing family of the same name, or Gemma) and overrides the fields it
// sets.
func (r *Registry) LoadFamilies(data []byte) error {
	var doc struct {
		Families []familyOverride `yaml:"families"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse families: %w", err)
	}
	for i, o := range doc.Families {
		if strings.TrimSpace(o.Name) == "" {
			return fmt.Errorf("%w: families[%d]: name is required", ErrInvalidArgument, i)
		}
		base := Gemma()
		if existing, ok := r.families[o.Name]; ok {
			base = existing
		}
		if o.Base != "" {
			b, err := r.Lookup(o.Base)
			if err != nil {
				return fmt.Errorf("families[%d]: %w", i, err)
			}
			base = b
		}
		if err := r.Register(o.apply(base)); err != nil {
			return fmt.Errorf("families[%d]: %w", i, err)
		}
	}
	return nil
}

// LoadFamiliesFile is LoadFamilies on the contents of path.
func (r *Registry) LoadFamiliesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.LoadFamilies(data)
}
