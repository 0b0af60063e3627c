/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package upload

// Field describes one input of an upload form.
type Field struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	HelpText    string `json:"helpText,omitempty"`
	Type        string `json:"type"`
	Optional    bool   `json:"optional"`
	Group       string `json:"group,omitempty"`
}

// Definition describes the uploads a format accepts.
type Definition struct {
	Format          string  `json:"format"`
	MultipleUpload  bool    `json:"multipleUpload"`
	ComponentFields []Field `json:"componentFields"`
	AssetFields     []Field `json:"assetFields"`
}

// NewDefinition returns the upload definition of Helm repositories: a single
// chart package or provenance file per upload and no component fields, since
// name and version are read from the file itself.
func NewDefinition() *Definition {
	return &Definition{
		Format:          Format,
		MultipleUpload:  false,
		ComponentFields: []Field{},
		AssetFields: []Field{
			{
				Name:        "asset",
				DisplayName: "Chart package or provenance file",
				HelpText:    "A .tgz chart package or its .tgz.prov provenance file",
				Type:        "FILE",
			},
		},
	}
}
