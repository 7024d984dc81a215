package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/hyperjump/personae/internal/cli"
	"github.com/hyperjump/personae/internal/index"
	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/internal/storage"
)

// personFlags binds record fields to command-line flags.
type personFlags struct {
	prefLabel         string
	forename          string
	forenameAltLabels string
	surname           string
	surnameAltLabels  string
	firstMentionDate  string
	lastMentionDate   string
	deathDate         string
	isCanon           bool
	comment           string
	bibliography      string
	lastEditor        string
}

func registerPersonFlags(fs *flag.FlagSet) *personFlags {
	f := &personFlags{}
	fs.StringVar(&f.prefLabel, "pref-label", "", "preferred label (required on add)")
	fs.StringVar(&f.forename, "forename", "", "forename (default: first forename alt label)")
	fs.StringVar(&f.forenameAltLabels, "forename-alt-labels", "", "';'-separated forename variants")
	fs.StringVar(&f.surname, "surname", "", "surname (default: first surname alt label)")
	fs.StringVar(&f.surnameAltLabels, "surname-alt-labels", "", "';'-separated surname variants")
	fs.StringVar(&f.firstMentionDate, "first-mention-date", "", "first mention date")
	fs.StringVar(&f.lastMentionDate, "last-mention-date", "", "last mention date")
	fs.StringVar(&f.deathDate, "death-date", "", "death date")
	fs.BoolVar(&f.isCanon, "canon", false, "mark the person as canon")
	fs.StringVar(&f.comment, "comment", "", "free comment")
	fs.StringVar(&f.bibliography, "bibliography", "", "bibliography")
	fs.StringVar(&f.lastEditor, "editor", "", "name recorded as last editor")
	return f
}

// input builds a PersonInput from base, overriding only the flags that were set on fs.
// A nil base starts from an empty record.
func (f *personFlags) input(fs *flag.FlagSet, base *models.Person) models.PersonInput {
	var in models.PersonInput
	if base != nil {
		in = models.PersonInput{
			PrefLabel:         base.PrefLabel,
			Forename:          base.Forename,
			ForenameAltLabels: base.ForenameAltLabels,
			Surname:           base.Surname,
			SurnameAltLabels:  base.SurnameAltLabels,
			FirstMentionDate:  base.FirstMentionDate,
			LastMentionDate:   base.LastMentionDate,
			DeathDate:         base.DeathDate,
			IsCanon:           base.IsCanon,
			Comment:           base.Comment,
			Bibliography:      base.Bibliography,
			LastEditor:        base.LastEditor,
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "pref-label":
			in.PrefLabel = f.prefLabel
		case "forename":
			in.Forename = f.forename
		case "forename-alt-labels":
			in.ForenameAltLabels = f.forenameAltLabels
		case "surname":
			in.Surname = f.surname
		case "surname-alt-labels":
			in.SurnameAltLabels = f.surnameAltLabels
		case "first-mention-date":
			in.FirstMentionDate = f.firstMentionDate
		case "last-mention-date":
			in.LastMentionDate = f.lastMentionDate
		case "death-date":
			in.DeathDate = f.deathDate
		case "canon":
			in.IsCanon = f.isCanon
		case "comment":
			in.Comment = f.comment
		case "bibliography":
			in.Bibliography = f.bibliography
		case "editor":
			in.LastEditor = f.lastEditor
		}
	})
	return in
}

func parsePersonID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid person id %q", s)
	}
	return id, nil
}

func printPersonUsage() {
	fmt.Println(`Usage:
  personae person add [flags]         Create a person
  personae person update [flags] <id> Update the flags given; other fields are kept
  personae person delete [flags] <id> Delete a person
  personae person get [flags] <id>    Show a person

Mutations are written to the database and then applied to the index.
When the index cannot be written (missing, busy) the change is kept in the
database and a warning is logged; run "personae index-populate" to repair.`)
}

func runPerson() {
	if len(os.Args) < 3 {
		printPersonUsage()
		os.Exit(1)
	}
	action := os.Args[2]
	fs := flag.NewFlagSet("person "+action, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	var pf *personFlags
	if action == "add" || action == "update" {
		pf = registerPersonFlags(fs)
	}
	_ = fs.Parse(os.Args[3:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var id int64
	switch action {
	case "add":
	case "update", "delete", "get":
		if fs.NArg() < 1 {
			printPersonUsage()
			os.Exit(1)
		}
		if id, err = parsePersonID(fs.Arg(0)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown person command: %s\n", action)
		printPersonUsage()
		os.Exit(1)
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, action != "get")
	if err != nil && index.IsNotFound(err) {
		// Without an index the record is still written; the synchronizer logs the gap.
		components, err = initializeComponents(cfg, logger, false)
	}
	if err != nil {
		exitWith(err)
	}
	defer components.Close()

	ctx := context.Background()
	p, err := personAction(ctx, components.Persons, action, id, pf, fs)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Person %d not found\n", id)
			os.Exit(1)
		}
		exitWith(err)
	}
	if action == "delete" {
		fmt.Printf("Person deleted: %d\n", id)
		return
	}
	if err := cli.WritePerson(os.Stdout, p, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// personAction runs one person command against persons and returns the resulting record.
func personAction(ctx context.Context, persons storage.PersonStore, action string, id int64, pf *personFlags, fs *flag.FlagSet) (*models.Person, error) {
	switch action {
	case "add":
		in := pf.input(fs, nil)
		if err := in.Validate(); err != nil {
			return nil, err
		}
		p := &models.Person{}
		in.Apply(p)
		if err := persons.CreatePerson(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	case "update":
		p, err := persons.GetPerson(ctx, id)
		if err != nil {
			return nil, err
		}
		in := pf.input(fs, p)
		if err := in.Validate(); err != nil {
			return nil, err
		}
		in.Apply(p)
		if err := persons.UpdatePerson(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	case "delete":
		return nil, persons.DeletePerson(ctx, id)
	case "get":
		return persons.GetPerson(ctx, id)
	default:
		return nil, fmt.Errorf("unknown person command %q", action)
	}
}
