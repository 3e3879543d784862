// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gongspot/recommender/config"
	"github.com/gongspot/recommender/logics"
	"github.com/gongspot/recommender/storage/data"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// buildEngine builds an engine from the configured data store.
func buildEngine(ctx context.Context, conf *config.Config) (*logics.Engine, data.Database, error) {
	dataClient, err := data.OpenConfig(conf.Database)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	e, err := logics.Build(ctx, dataClient,
		logics.WithNumNeighbors(conf.Engine.NumNeighbors),
		logics.WithNumJobs(conf.Engine.NumJobs))
	if err != nil {
		closeDataClient(dataClient)
		return nil, nil, errors.Trace(err)
	}
	return e, dataClient, nil
}

func parseUserId(arg string) (int64, error) {
	userId, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, errors.NotValidf("user id %q", arg)
	}
	return userId, nil
}

func formatRating(rating *float64) string {
	if rating == nil {
		return ""
	}
	return strconv.FormatFloat(*rating, 'f', 1, 64)
}

func writeRecommendations(w io.Writer, recommendations []logics.Recommendation) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Place", "Votes", "Name", "Address", "Rating", "Tags"})
	for _, r := range recommendations {
		tags := append(append(append([]string{}, r.Types...), r.Purposes...), r.Moods...)
		if err := table.Append([]string{
			strconv.FormatInt(r.PlaceId, 10),
			strconv.Itoa(r.Votes),
			r.Name,
			r.Address,
			formatRating(r.Rating),
			strings.Join(tags, ","),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func writeNeighbors(w io.Writer, neighbors []logics.Neighbor) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"User", "Similarity"})
	for _, neighbor := range neighbors {
		if err := table.Append([]string{
			strconv.FormatInt(neighbor.UserId, 10),
			strconv.FormatFloat(neighbor.Similarity, 'f', 4, 64),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func writeMemoScores(w io.Writer, scores []logics.MemoScore) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Memo", "Score"})
	for _, score := range scores {
		if err := table.Append([]string{score.PlaceId, strconv.FormatFloat(score.Score, 'f', 4, 64)}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

var recommendCommand = &cobra.Command{
	Use:   "recommend <user-id>",
	Short: "Recommend places to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userId, err := parseUserId(args[0])
		if err != nil {
			return errors.Trace(err)
		}
		conf, err := loadConfig(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		n, _ := cmd.Flags().GetInt("n")
		if !cmd.Flags().Changed("n") {
			n = conf.Engine.DefaultN
		}
		e, dataClient, err := buildEngine(cmd.Context(), conf)
		if err != nil {
			return errors.Trace(err)
		}
		defer closeDataClient(dataClient)
		if !e.HasUser(userId) {
			return errors.NotFoundf("user %d", userId)
		}
		recommendations, err := logics.Hydrate(cmd.Context(), dataClient, e.Recommend(userId, n))
		if err != nil {
			return errors.Trace(err)
		}
		return writeRecommendations(os.Stdout, recommendations)
	},
}

var neighborsCommand = &cobra.Command{
	Use:   "neighbors <user-id>",
	Short: "Show the most similar users of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userId, err := parseUserId(args[0])
		if err != nil {
			return errors.Trace(err)
		}
		conf, err := loadConfig(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		n, _ := cmd.Flags().GetInt("n")
		if !cmd.Flags().Changed("n") {
			n = conf.Engine.NumNeighbors
		}
		e, dataClient, err := buildEngine(cmd.Context(), conf)
		if err != nil {
			return errors.Trace(err)
		}
		defer closeDataClient(dataClient)
		if !e.HasUser(userId) {
			return errors.NotFoundf("user %d", userId)
		}
		return writeNeighbors(os.Stdout, e.Neighbors(userId, n))
	},
}

var rankCommand = &cobra.Command{
	Use:   "rank <memos.json>",
	Short: "Rank memos by similarity to their average embedding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		content, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Trace(err)
		}
		var memos []logics.Memo
		if err = json.Unmarshal(content, &memos); err != nil {
			return errors.Annotatef(err, "failed to parse %s", args[0])
		}
		scores, err := logics.NewMemoRanker(conf.OpenAI).Rank(cmd.Context(), memos)
		if err != nil {
			return errors.Trace(err)
		}
		if len(scores) == 0 {
			fmt.Println("No memos")
			return nil
		}
		return writeMemoScores(os.Stdout, scores)
	},
}

func init() {
	recommendCommand.Flags().Int("n", 10, "number of recommended places")
	neighborsCommand.Flags().Int("n", 5, "number of similar users")
	cliCommand.AddCommand(recommendCommand, neighborsCommand, rankCommand)
}
