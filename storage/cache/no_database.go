// Copyright 2022 gorse Project Authors
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

package cache

import "context"

// NoDatabase means that no database used.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Purge() error {
	return ErrNoDatabase
}

func (NoDatabase) Set(_ context.Context, _, _ string) error {
	return ErrNoDatabase
}

func (NoDatabase) Get(_ context.Context, _ string) (string, error) {
	return "", ErrNoDatabase
}

func (NoDatabase) ReplaceFrequentlyBoughtTogether(_ context.Context, _ []FrequentlyBoughtTogether) error {
	return ErrNoDatabase
}

func (NoDatabase) GetFrequentlyBoughtTogether(_ context.Context, _ string, _ int) ([]FrequentlyBoughtTogether, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) ScanFrequentlyBoughtTogether(_ context.Context, _ func(FrequentlyBoughtTogether) error) error {
	return ErrNoDatabase
}

func (NoDatabase) ReplaceAssociationRules(_ context.Context, _ []AssociationRule) error {
	return ErrNoDatabase
}

func (NoDatabase) GetAssociationRules(_ context.Context, _ int) ([]AssociationRule, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) ReplaceUserRecommendations(_ context.Context, _ int, _ []UserRecommendation) error {
	return ErrNoDatabase
}

func (NoDatabase) GetUserRecommendations(_ context.Context, _ string, _ int) ([]UserRecommendation, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) ScanUserRecommendations(_ context.Context, _ func(UserRecommendation) error) error {
	return ErrNoDatabase
}

func (NoDatabase) ReplaceSimilarItems(_ context.Context, _ []SimilarItem) error {
	return ErrNoDatabase
}

func (NoDatabase) GetSimilarItems(_ context.Context, _ string, _ int) ([]SimilarItem, error) {
	return nil, ErrNoDatabase
}
